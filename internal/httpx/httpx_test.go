package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
)

func TestGetJSON_Decodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		w.Write([]byte(`{"price": 42.5}`))
	}))
	defer srv.Close()

	c := New(model.SourceStock, srv.URL, 5*time.Second)
	var out struct {
		Price float64 `json:"price"`
	}
	if err := c.GetJSON(context.Background(), "/quote", nil, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Price != 42.5 {
		t.Errorf("price = %v, want 42.5", out.Price)
	}
}

func TestGetJSON_StatusTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header http.Header
		check  func(t *testing.T, err error)
	}{
		{
			name:   "404 is NotFound",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				if !provider.IsNotFound(err) {
					t.Errorf("want NotFound, got %v", err)
				}
			},
		},
		{
			name:   "429 is RateLimited with hint",
			status: http.StatusTooManyRequests,
			header: http.Header{"Retry-After": []string{"17"}},
			check: func(t *testing.T, err error) {
				hint, ok := provider.IsRateLimited(err)
				if !ok {
					t.Fatalf("want RateLimited, got %v", err)
				}
				if hint != 17*time.Second {
					t.Errorf("hint = %v, want 17s", hint)
				}
			},
		},
		{
			name:   "422 is Validation",
			status: http.StatusUnprocessableEntity,
			check: func(t *testing.T, err error) {
				if !provider.IsValidation(err) {
					t.Errorf("want Validation, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, vs := range tt.header {
					w.Header()[k] = vs
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := New(model.SourceCrypto, srv.URL, 5*time.Second, WithRetries(0, time.Millisecond))
			err := c.GetJSON(context.Background(), "/x", nil, &struct{}{})
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestGetJSON_RetriesTransientOnly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := New(model.SourceEvents, srv.URL, 5*time.Second, WithRetries(3, time.Millisecond))
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.GetJSON(context.Background(), "/x", nil, &out); err != nil {
		t.Fatalf("GetJSON failed after retries: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	if !out.OK {
		t.Error("body not decoded after retry")
	}
}

func TestGetJSON_NoRetryOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(model.SourceCrypto, srv.URL, 5*time.Second, WithRetries(3, time.Millisecond))
	err := c.GetJSON(context.Background(), "/x", nil, &struct{}{})
	if _, ok := provider.IsRateLimited(err); !ok {
		t.Fatalf("want RateLimited, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (throttling is surfaced, not hammered)", got)
	}
}

func TestGetJSON_MalformedBodyIsValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c := New(model.SourceStock, srv.URL, 5*time.Second)
	err := c.GetJSON(context.Background(), "/x", nil, &struct{}{})
	if !provider.IsValidation(err) {
		t.Errorf("want Validation, got %v", err)
	}
}
