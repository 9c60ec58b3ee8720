// Package heartbeat lets the CLI tell whether a gateway is running.
package heartbeat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	cron "github.com/netresearch/go-cron"
)

// DefaultInterval is how often a running gateway refreshes its heartbeat.
const DefaultInterval = 30 * time.Second

// Status represents the liveness state of the gateway.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// Heartbeat is the data written to the heartbeat file.
type Heartbeat struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Sessions  int       `json:"sessions"`
	QuotesAt  time.Time `json:"quotes_at,omitzero"`
}

// Stats is the live gateway state recorded with each beat.
type Stats struct {
	Sessions int
	QuotesAt time.Time
}

// WriterConfig configures a Writer.
type WriterConfig struct {
	Path     string
	Addr     string
	Interval time.Duration // DefaultInterval when zero
	Stats    func() Stats  // optional
}

// Writer periodically writes a heartbeat file to disk.
type Writer struct {
	cfg     WriterConfig
	started time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewWriter creates a heartbeat writer.
func NewWriter(cfg WriterConfig) *Writer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Writer{cfg: cfg}
}

// Start writes a heartbeat now and then on every interval.
func (w *Writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron != nil {
		return nil
	}

	w.started = time.Now()
	if err := w.write(); err != nil {
		return err
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", w.cfg.Interval), func() {
		if err := w.write(); err != nil {
			slog.Warn("write heartbeat", "path", w.cfg.Path, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule heartbeat: %w", err)
	}
	c.Start()
	w.cron = c
	return nil
}

// Stop stops writing and removes the heartbeat file.
func (w *Writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
	w.cron = nil

	if err := os.Remove(w.cfg.Path); err != nil && !os.IsNotExist(err) {
		slog.Warn("remove heartbeat", "path", w.cfg.Path, "error", err)
	}
}

func (w *Writer) write() error {
	hb := Heartbeat{
		PID:       os.Getpid(),
		Addr:      w.cfg.Addr,
		StartedAt: w.started,
		Timestamp: time.Now(),
		Uptime:    time.Since(w.started).Truncate(time.Second).String(),
	}
	if w.cfg.Stats != nil {
		s := w.cfg.Stats()
		hb.Sessions = s.Sessions
		hb.QuotesAt = s.QuotesAt
	}

	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: tmp + rename
	tmp := w.cfg.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return os.Rename(tmp, w.cfg.Path)
}

// Check reads a heartbeat file and returns the liveness status. A heartbeat
// older than maxAge is stale.
func Check(path string, maxAge time.Duration) (Status, *Heartbeat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StatusDead, nil, nil
		}
		return StatusDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return StatusDead, nil, fmt.Errorf("unmarshal heartbeat: %w", err)
	}

	if time.Since(hb.Timestamp) > maxAge {
		return StatusStale, &hb, nil
	}
	return StatusAlive, &hb, nil
}
