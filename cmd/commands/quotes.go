package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/coinchat/internal/market"
)

// NewQuotesCommand returns the quotes subcommand.
func NewQuotesCommand() *cli.Command {
	return &cli.Command{
		Name:  "quotes",
		Usage: "Show the top coins by market cap",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Keep refreshing until interrupted",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format: table, json or yaml",
				Value:   outputTable,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of coins (default: from config)",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Refresh interval with --watch, clamped to 5s..30s (default: from config)",
			},
		},
		Action: runQuotes,
	}
}

func runQuotes(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("output")
	if err := checkOutput(format); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mc := cfg.Market
	if cmd.IsSet("limit") {
		mc.PerPage = cmd.Int("limit")
	}

	if !cmd.Bool("watch") {
		client := market.NewClient(market.ClientConfig{
			BaseURL:           mc.BaseURL,
			VSCurrency:        mc.VSCurrency,
			PerPage:           mc.PerPage,
			RequestsPerMinute: mc.RequestsPerMinute,
		})
		quotes, err := client.Markets(ctx)
		if err != nil {
			return fmt.Errorf("fetch quotes: %w", err)
		}
		return writeQuotes(os.Stdout, format, quotes)
	}

	poller := newPoller(mc, func(snap market.Snapshot) {
		if format == outputTable {
			fmt.Fprintf(os.Stdout, "\n%s\n", snap.FetchedAt.Format("15:04:05"))
		}
		if err := writeQuotes(os.Stdout, format, snap.Quotes); err != nil {
			slog.Error("write quotes", "error", err)
		}
	})
	if cmd.IsSet("interval") {
		if err := poller.SetInterval(cmd.Duration("interval")); err != nil {
			return err
		}
	}
	if err := poller.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	poller.Stop()
	return nil
}
