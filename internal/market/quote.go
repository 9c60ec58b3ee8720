// Package market fetches and tracks the top cryptocurrencies by market cap.
package market

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Quote is one row of the markets listing.
type Quote struct {
	ID                       string    `json:"id"`
	Symbol                   string    `json:"symbol"`
	Name                     string    `json:"name"`
	Image                    string    `json:"image,omitempty"`
	CurrentPrice             float64   `json:"current_price"`
	PriceChangePercentage24h float64   `json:"price_change_percentage_24h"`
	MarketCapRank            int       `json:"market_cap_rank,omitempty"`
	Sparkline                Sparkline `json:"sparkline_in_7d"`
}

// Sparkline holds the 7-day price series of a quote.
type Sparkline struct {
	Price []float64 `json:"price"`
}

// Trend classifies the 24h move of a quote.
type Trend string

const (
	TrendFlat   Trend = "flat"
	TrendSurge  Trend = "surge"
	TrendPlunge Trend = "plunge"
)

// TrendThreshold is the absolute 24h change, in percent, that marks a quote
// as surging or plunging.
const TrendThreshold = 5.0

// Trend reports whether the quote moved past TrendThreshold in either direction.
func (q Quote) Trend() Trend {
	switch {
	case q.PriceChangePercentage24h >= TrendThreshold:
		return TrendSurge
	case q.PriceChangePercentage24h <= -TrendThreshold:
		return TrendPlunge
	default:
		return TrendFlat
	}
}

// DefaultPair is the chart shown when no coin is focused.
const DefaultPair = "BTCUSDT"

// TradingPair returns the USDT pair for the quote, e.g. "ETHUSDT".
func (q Quote) TradingPair() string {
	return TradingPair(q.Symbol)
}

// TradingPair builds the USDT pair for a coin symbol. An empty symbol maps
// to DefaultPair.
func TradingPair(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return DefaultPair
	}
	return symbol + "USDT"
}

const chartBaseURL = "https://s.tradingview.com/widgetembed/"

// ChartURL returns the embeddable 30-minute chart for a Binance pair.
func ChartURL(pair string) string {
	if pair == "" {
		pair = DefaultPair
	}
	q := url.Values{}
	q.Set("symbol", "BINANCE:"+pair)
	q.Set("interval", "30")
	q.Set("hidesidetoolbar", "1")
	q.Set("theme", "dark")
	return chartBaseURL + "?" + q.Encode()
}

// Point is a vertex of a sparkline polyline. Y grows downwards.
type Point struct {
	X, Y float64
}

// Points is a polyline.
type Points []Point

// String renders the points in SVG polyline syntax ("x,y x,y ...").
func (ps Points) String() string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = strconv.FormatFloat(p.X, 'f', -1, 64) + "," + strconv.FormatFloat(p.Y, 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}

// SparklinePoints scales prices into a width x height box. The lowest price
// sits on the bottom edge and the highest on the top edge; a flat series is
// drawn at mid-height. Returns nil for an empty series.
func SparklinePoints(prices []float64, width, height float64) Points {
	if len(prices) == 0 {
		return nil
	}

	lo, hi := slices.Min(prices), slices.Max(prices)
	span := hi - lo

	out := make(Points, len(prices))
	for i, p := range prices {
		x := float64(i) / float64(len(prices)) * width
		y := height / 2
		if span > 0 {
			y = height - (p-lo)/span*height
		}
		out[i] = Point{X: x, Y: y}
	}
	return out
}

// String renders a quote as a single table-friendly line.
func (q Quote) String() string {
	return fmt.Sprintf("%s (%s) $%.2f %+.2f%%", q.Name, strings.ToUpper(q.Symbol), q.CurrentPrice, q.PriceChangePercentage24h)
}
