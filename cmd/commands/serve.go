package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/coinchat/internal/chat"
	"github.com/dohr-michael/coinchat/internal/config"
	"github.com/dohr-michael/coinchat/internal/events"
	"github.com/dohr-michael/coinchat/internal/gateway"
	"github.com/dohr-michael/coinchat/internal/gateway/ws"
	"github.com/dohr-michael/coinchat/internal/heartbeat"
	"github.com/dohr-michael/coinchat/internal/market"
	"github.com/dohr-michael/coinchat/internal/models"
	"github.com/dohr-michael/coinchat/internal/storage"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the chat gateway and the market poller",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cmd.Bool("debug"), cfg.Events.LogLevel)

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	usage := storage.NewUsageTracker(bus)
	defer usage.Close()
	if cfg.Events.LogDir != "" {
		eventLog := storage.NewEventLogger(cfg.Events.LogDir, bus)
		defer eventLog.Close()
		slog.Info("event log enabled", "dir", cfg.Events.LogDir)
	}

	registry := models.NewRegistry(cfg.Models)
	sessions := chat.NewManager(chat.ManagerConfig{
		Completer: models.NewStreamer(registry, bus),
		Bus:       bus,
		Defaults:  chatDefaults(cfg),
	})
	defer sessions.Shutdown()

	var (
		poller *market.Poller
		quotes ws.QuoteSource
	)
	if !cfg.Market.Disabled {
		poller = newPoller(cfg.Market, func(snap market.Snapshot) {
			bus.Publish(events.NewTypedEvent(events.SourceMarket, events.MarketQuotesPayload{
				Quotes:    snap.Quotes,
				FetchedAt: snap.FetchedAt,
			}))
		})
		if err := poller.Start(ctx); err != nil {
			return fmt.Errorf("start market poller: %w", err)
		}
		defer poller.Stop()
		quotes = poller
	}

	server := gateway.NewServer(gateway.ServerConfig{
		Bus:      bus,
		Sessions: sessions,
		Catalog:  newCatalog(cfg.Models, registry),
		Quotes:   quotes,
		Usage:    usage,
		Host:     cfg.Gateway.Host,
		Port:     cfg.Gateway.Port,
	})

	reloader := config.NewReloader(cmd.String("config"), config.DotenvPath(), cfg)
	reloader.OnReload(func(next *config.Config) {
		registry.Update(next.Models)
		sessions.SetDefaults(chatDefaults(next))
		if poller != nil {
			if err := poller.SetInterval(next.Market.Interval.Duration()); err != nil {
				slog.Warn("update market interval", "error", err)
			}
		}
	})

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-hup:
				if err := reloader.Reload(); err != nil {
					slog.Error("config reload failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := os.MkdirAll(config.HomePath(), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", config.HomePath(), err)
	}
	hb := heartbeat.NewWriter(heartbeat.WriterConfig{
		Path: config.HeartbeatPath(),
		Addr: cfg.Gateway.Addr(),
		Stats: func() heartbeat.Stats {
			st := heartbeat.Stats{Sessions: len(sessions.List())}
			if poller != nil {
				st.QuotesAt = poller.Latest().FetchedAt
			}
			return st
		},
	})
	if err := hb.Start(); err != nil {
		slog.Warn("heartbeat disabled", "error", err)
	}
	defer hb.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func chatDefaults(cfg *config.Config) chat.Defaults {
	return chat.Defaults{
		Greeting:     cfg.Chat.Greeting,
		SystemPrompt: cfg.Chat.SystemPrompt,
		Model:        cfg.Models.Default,
	}
}

func newPoller(cfg config.MarketConfig, onRefresh func(market.Snapshot)) *market.Poller {
	client := market.NewClient(market.ClientConfig{
		BaseURL:           cfg.BaseURL,
		VSCurrency:        cfg.VSCurrency,
		PerPage:           cfg.PerPage,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})
	return market.NewPoller(market.PollerConfig{
		Fetcher:   client,
		Interval:  cfg.Interval.Duration(),
		OnRefresh: onRefresh,
	})
}

// newCatalog lists models from the configured endpoint, or from the
// providers themselves when none is set.
func newCatalog(cfg config.ModelsConfig, registry *models.Registry) *models.Catalog {
	if cfg.CatalogURL != "" {
		return models.NewCatalog(&models.HTTPLister{URL: cfg.CatalogURL})
	}
	return models.NewCatalog(registry)
}
