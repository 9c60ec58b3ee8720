package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"
)

// Option is one selectable model.
type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
}

// FallbackOptions are offered whenever the model list cannot be obtained.
var FallbackOptions = []Option{
	{Value: "deepseek-chat", Label: "DeepSeek-V3"},
	{Value: "deepseek-reasoner", Label: "DeepSeek-R1"},
}

// Lister fetches the selectable models.
type Lister interface {
	ListModels(ctx context.Context) ([]Option, error)
}

// HTTPLister queries a model-listing endpoint: POST {} returning
// {"models": [...]}.
type HTTPLister struct {
	URL    string
	Client *http.Client
}

var errNoModels = errors.New("response has no models field")

func (l *HTTPLister) ListModels(ctx context.Context) ([]Option, error) {
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.URL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("list models: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("list models: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out struct {
		Models []Option `json:"models"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("list models: decode: %w", err)
	}
	if out.Models == nil {
		return nil, fmt.Errorf("list models: %w", errNoModels)
	}
	return out.Models, nil
}

// Catalog lists models from a Lister, substituting FallbackOptions when the
// lister fails. Failures are logged, never returned.
type Catalog struct {
	lister Lister
}

// NewCatalog creates a catalog over lister.
func NewCatalog(lister Lister) *Catalog {
	return &Catalog{lister: lister}
}

// List returns the selectable models.
func (c *Catalog) List(ctx context.Context) []Option {
	if c.lister == nil {
		return slices.Clone(FallbackOptions)
	}
	opts, err := c.lister.ListModels(ctx)
	if err != nil {
		slog.Warn("failed to fetch available models, using fallback list", "error", err)
		return slices.Clone(FallbackOptions)
	}
	return opts
}

// Resolve picks the model to use: the current selection when it is offered,
// otherwise the first enabled option (or the first option if all are
// disabled). With no options the selection is kept.
func Resolve(opts []Option, selected string) string {
	if len(opts) == 0 {
		return selected
	}
	if slices.ContainsFunc(opts, func(o Option) bool { return o.Value == selected }) {
		return selected
	}
	if i := slices.IndexFunc(opts, func(o Option) bool { return !o.Disabled }); i >= 0 {
		return opts[i].Value
	}
	return opts[0].Value
}
