package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/dohr-michael/coinchat/internal/market"
	"github.com/dohr-michael/coinchat/internal/models"
)

const (
	colorSurge  = "#10B981"
	colorPlunge = "#EF4444"
	colorMuted  = "#6B7280"
	colorBorder = "#374151"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	surgeStyle  = cellStyle.Foreground(lipgloss.Color(colorSurge))
	plungeStyle = cellStyle.Foreground(lipgloss.Color(colorPlunge))
	mutedStyle  = cellStyle.Foreground(lipgloss.Color(colorMuted))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorBorder))
)

// Output formats.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func checkOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

// quoteView is the printed form of a quote.
type quoteView struct {
	Rank      int     `json:"rank" yaml:"rank"`
	Symbol    string  `json:"symbol" yaml:"symbol"`
	Name      string  `json:"name" yaml:"name"`
	Price     float64 `json:"price" yaml:"price"`
	Change24h float64 `json:"change_24h" yaml:"change_24h"`
	Trend     string  `json:"trend" yaml:"trend"`
	Pair      string  `json:"pair" yaml:"pair"`
	Chart     string  `json:"chart" yaml:"chart"`
}

func quoteViews(quotes []market.Quote) []quoteView {
	out := make([]quoteView, len(quotes))
	for i, q := range quotes {
		pair := q.TradingPair()
		out[i] = quoteView{
			Rank:      q.MarketCapRank,
			Symbol:    strings.ToUpper(q.Symbol),
			Name:      q.Name,
			Price:     q.CurrentPrice,
			Change24h: q.PriceChangePercentage24h,
			Trend:     string(q.Trend()),
			Pair:      pair,
			Chart:     market.ChartURL(pair),
		}
	}
	return out
}

// writeQuotes prints quotes in the given format.
func writeQuotes(w io.Writer, format string, quotes []market.Quote) error {
	views := quoteViews(quotes)
	switch format {
	case outputJSON:
		return writeJSON(w, views)
	case outputYAML:
		return writeYAML(w, views)
	}

	rows := make([][]string, len(views))
	for i, v := range views {
		rows[i] = []string{
			strconv.Itoa(v.Rank),
			v.Symbol,
			v.Name,
			formatPrice(v.Price),
			fmt.Sprintf("%+.2f%%", v.Change24h),
			v.Pair,
		}
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("#", "SYMBOL", "NAME", "PRICE", "24H", "PAIR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col != 4 || row < 0 || row >= len(views) {
				return cellStyle
			}
			switch market.Trend(views[row].Trend) {
			case market.TrendSurge:
				return surgeStyle
			case market.TrendPlunge:
				return plungeStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// writeModels prints the model catalog, marking the selected entry.
func writeModels(w io.Writer, format string, opts []models.Option, selected string) error {
	switch format {
	case outputJSON:
		return writeJSON(w, map[string]any{"models": opts, "selected": selected})
	case outputYAML:
		return writeYAML(w, map[string]any{"models": opts, "selected": selected})
	}

	rows := make([][]string, len(opts))
	for i, o := range opts {
		mark := ""
		if o.Value == selected {
			mark = "*"
		}
		rows[i] = []string{mark, o.Value, o.Label}
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("", "MODEL", "LABEL").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(opts) && opts[row].Disabled {
				return mutedStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func formatPrice(p float64) string {
	if p >= 1 {
		return strconv.FormatFloat(p, 'f', 2, 64)
	}
	return strconv.FormatFloat(p, 'g', 4, 64)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// renderMarkdown renders a reply for the terminal. On failure the raw
// content is returned.
func renderMarkdown(content string, width int) string {
	if content == "" {
		return ""
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
