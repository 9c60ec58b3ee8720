package models

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestHTTPLister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) != 0 {
			t.Errorf("expected empty JSON object body, got %v (%v)", body, err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[{"value":"gpt-4o","label":"GPT-4o","disabled":false},{"value":"o1","label":"o1","disabled":true}]}`))
	}))
	defer srv.Close()

	opts, err := (&HTTPLister{URL: srv.URL}).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	want := []Option{{Value: "gpt-4o", Label: "GPT-4o"}, {Value: "o1", Label: "o1", Disabled: true}}
	if !reflect.DeepEqual(opts, want) {
		t.Fatalf("got %+v, want %+v", opts, want)
	}
}

func TestHTTPLister_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"status", http.StatusInternalServerError, `oops`},
		{"not json", http.StatusOK, `<html>`},
		{"no models field", http.StatusOK, `{"items":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.payload))
			}))
			defer srv.Close()

			if _, err := (&HTTPLister{URL: srv.URL}).ListModels(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

type listerFunc func(context.Context) ([]Option, error)

func (f listerFunc) ListModels(ctx context.Context) ([]Option, error) { return f(ctx) }

func TestCatalog_FallbackOnError(t *testing.T) {
	c := NewCatalog(listerFunc(func(context.Context) ([]Option, error) {
		return nil, errors.New("connection refused")
	}))

	got := c.List(context.Background())
	if !reflect.DeepEqual(got, FallbackOptions) {
		t.Fatalf("expected fallback list, got %+v", got)
	}

	// The fallback must not be shared with callers.
	got[0].Label = "changed"
	if FallbackOptions[0].Label != "DeepSeek-V3" {
		t.Fatal("fallback list was mutated through the returned slice")
	}
}

func TestCatalog_EmptyListIsKept(t *testing.T) {
	c := NewCatalog(listerFunc(func(context.Context) ([]Option, error) {
		return []Option{}, nil
	}))
	if got := c.List(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty list, got %+v", got)
	}
}

func TestResolve(t *testing.T) {
	opts := []Option{
		{Value: "o1", Disabled: true},
		{Value: "gpt-4o"},
		{Value: "deepseek-chat"},
	}

	tests := []struct {
		name     string
		opts     []Option
		selected string
		want     string
	}{
		{"kept when offered", opts, "deepseek-chat", "deepseek-chat"},
		{"first enabled otherwise", opts, "deepseek-reasoner", "gpt-4o"},
		{"all disabled", []Option{{Value: "a", Disabled: true}, {Value: "b", Disabled: true}}, "x", "a"},
		{"no options", nil, "deepseek-chat", "deepseek-chat"},
		{"fallback keeps default", FallbackOptions, "deepseek-chat", "deepseek-chat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.opts, tt.selected); got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
		})
	}
}
