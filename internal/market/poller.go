package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	cron "github.com/netresearch/go-cron"
)

const (
	DefaultInterval = 5 * time.Second
	MinInterval     = 5 * time.Second
	MaxInterval     = 30 * time.Second
)

// ErrRefreshInProgress is returned by Refresh when a fetch is already running.
var ErrRefreshInProgress = errors.New("market refresh already in progress")

// Fetcher retrieves the current market listing.
type Fetcher interface {
	Markets(ctx context.Context) ([]Quote, error)
}

// Snapshot is the result of one successful fetch.
type Snapshot struct {
	Quotes    []Quote   `json:"quotes"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PollerConfig holds dependencies for the poller.
type PollerConfig struct {
	Fetcher  Fetcher
	Interval time.Duration
	// OnRefresh is called after each successful fetch. Optional.
	OnRefresh func(Snapshot)
}

// Poller refreshes quotes on a fixed schedule and keeps the latest good
// snapshot. Failed fetches are logged and leave the snapshot untouched.
type Poller struct {
	fetcher   Fetcher
	onRefresh func(Snapshot)

	mu       sync.RWMutex
	latest   Snapshot
	interval time.Duration

	busy atomic.Bool

	cron   *cron.Cron
	entry  cron.EntryID
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPoller creates a poller. It does not fetch until Start or Refresh.
func NewPoller(cfg PollerConfig) *Poller {
	return &Poller{
		fetcher:   cfg.Fetcher,
		onRefresh: cfg.OnRefresh,
		interval:  ClampInterval(cfg.Interval),
	}
}

// ClampInterval bounds a refresh interval to [MinInterval, MaxInterval];
// zero selects DefaultInterval.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultInterval
	case d < MinInterval:
		return MinInterval
	case d > MaxInterval:
		return MaxInterval
	default:
		return d
	}
}

// Start fetches once immediately, then on every interval until Stop or ctx
// is done.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron != nil {
		return fmt.Errorf("market poller already started")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.cron = cron.New()
	id, err := p.cron.AddFunc(everySpec(p.interval), p.tick)
	if err != nil {
		p.cancel()
		p.cron = nil
		return fmt.Errorf("schedule market refresh: %w", err)
	}
	p.entry = id
	p.cron.Start()

	go p.tick()

	slog.Info("market poller started", "interval", p.interval)
	return nil
}

// Stop halts polling and waits for a running fetch to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	c, cancel := p.cron, p.cancel
	p.cron, p.cancel = nil, nil
	p.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	slog.Info("market poller stopped")
}

// SetInterval changes the refresh interval, rescheduling a running poller.
func (p *Poller) SetInterval(d time.Duration) error {
	d = ClampInterval(d)

	p.mu.Lock()
	defer p.mu.Unlock()

	if d == p.interval {
		return nil
	}
	p.interval = d
	if p.cron == nil {
		return nil
	}

	p.cron.Remove(p.entry)
	id, err := p.cron.AddFunc(everySpec(d), p.tick)
	if err != nil {
		return fmt.Errorf("reschedule market refresh: %w", err)
	}
	p.entry = id
	slog.Info("market poller rescheduled", "interval", d)
	return nil
}

// Interval returns the current refresh interval.
func (p *Poller) Interval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interval
}

// Latest returns the last successful snapshot. FetchedAt is zero until the
// first fetch succeeds.
func (p *Poller) Latest() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{Quotes: slices.Clone(p.latest.Quotes), FetchedAt: p.latest.FetchedAt}
}

// Refresh fetches now. A fetch already in flight is not duplicated.
func (p *Poller) Refresh(ctx context.Context) error {
	if !p.busy.CompareAndSwap(false, true) {
		return ErrRefreshInProgress
	}
	defer p.busy.Store(false)

	quotes, err := p.fetcher.Markets(ctx)
	if err != nil {
		return err
	}

	snap := Snapshot{Quotes: quotes, FetchedAt: time.Now()}
	p.mu.Lock()
	p.latest = snap
	p.mu.Unlock()

	if p.onRefresh != nil {
		p.onRefresh(Snapshot{Quotes: slices.Clone(quotes), FetchedAt: snap.FetchedAt})
	}
	return nil
}

func (p *Poller) tick() {
	p.mu.RLock()
	ctx := p.ctx
	p.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	err := p.Refresh(ctx)
	switch {
	case err == nil:
		slog.Debug("market quotes refreshed")
	case errors.Is(err, ErrRefreshInProgress):
		slog.Debug("market refresh skipped, previous still running")
	case ctx.Err() != nil:
	default:
		slog.Error("fetch market quotes", "error", err)
	}
}

func everySpec(d time.Duration) string {
	return "@every " + d.String()
}
