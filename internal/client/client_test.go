package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"technical-analyst/models"
)

func TestSearch(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			t.Errorf("path = %q, want /api/search", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"suggestions":[{"ticker":"AAPL","name":"Apple Inc.","market":"US","extra":1}]}`))
	}))
	defer server.Close()

	c := New(server.URL+"/", nil)
	got, err := c.Search(context.Background(), "  app ")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotQuery != "app" {
		t.Errorf("q = %q, want app", gotQuery)
	}
	want := []models.SuggestionItem{{Ticker: "AAPL", Name: "Apple Inc.", Market: "US"}}
	if diff := pretty.Compare(got, want); diff != "" {
		t.Errorf("Search() diff:\n%s", diff)
	}
}

func TestSearch_ShortQueryIsNotSent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"suggestions":[]}`))
	}))
	defer server.Close()

	c := New(server.URL, server.Client())
	for _, q := range []string{"", "a", "  b  ", "é"} {
		got, err := c.Search(context.Background(), q)
		if err != nil {
			t.Errorf("Search(%q) error = %v", q, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Search(%q) = %v, want empty non-nil list", q, got)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("requests = %d, want 0", calls.Load())
	}

	if _, err := c.Search(context.Background(), "ab"); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("requests = %d, want 1 for a two-character query", calls.Load())
	}
}

func TestSearch_NullSuggestions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	got, err := New(server.URL, nil).Search(context.Background(), "zzz")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Error("Search() = nil, want empty list")
	}
}

func TestQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/quote/MC.PA" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"symbol":"MC.PA","price":712.4,"changePercent":-1.25,"unknown":"ignored"}`))
	}))
	defer server.Close()

	q, err := New(server.URL, nil).Quote(context.Background(), "MC.PA")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if q.Price != 712.4 || q.ChangePercent != -1.25 {
		t.Errorf("Quote() = %+v", q)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error with message", http.StatusInternalServerError, `{"error":"boom"}`, "status 500: boom"},
		{"not found without body", http.StatusNotFound, ``, "status 404"},
		{"invalid json", http.StatusOK, `{`, "failed to decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := New(server.URL, nil)
			if _, err := c.Quote(context.Background(), "AAPL"); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Quote() error = %v, want containing %q", err, tt.wantErr)
			}
			if _, err := c.Search(context.Background(), "AAPL"); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Search() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := New(url, nil)
	if q, err := c.Quote(context.Background(), "AAPL"); err == nil || q != nil {
		t.Errorf("Quote() = %v, %v; want nil quote and error", q, err)
	}
	if _, err := c.Quote(context.Background(), " "); err == nil {
		t.Error("Quote(blank) should fail")
	}
}
