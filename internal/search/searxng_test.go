package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSearxNG_Search_ParsesResults(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Doc", "url": "https://www.ada.org/x", "content": "<b>fluoride</b> &amp; sealants"},
				{"title": "Bad", "url": "", "content": "no url"},
			},
		})
	}))
	defer srv.Close()

	s := &SearxNG{BaseURL: srv.URL, HTTPClient: srv.Client()}
	got, err := s.Search(context.Background(), Request{Query: "fluoride", Limit: 5, IncludeDomains: []string{"ada.org", "cdc.gov"}})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 valid result, got %d", len(got))
	}
	if got[0].URL != "https://www.ada.org/x" {
		t.Fatalf("unexpected url: %q", got[0].URL)
	}
	if got[0].Content != "fluoride & sealants" {
		t.Fatalf("snippet not cleaned: %q", got[0].Content)
	}
	if gotQuery != "fluoride (site:ada.org OR site:cdc.gov)" {
		t.Fatalf("unexpected scoped query: %q", gotQuery)
	}
}

func TestSearxNG_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := &SearxNG{BaseURL: srv.URL, HTTPClient: srv.Client()}
	_, err := s.Search(context.Background(), Request{Query: "x"})
	se, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T %v", err, err)
	}
	if se.Code != http.StatusBadGateway || !se.Temporary() {
		t.Fatalf("unexpected status error: %+v", se)
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("error should carry the code: %v", err)
	}
}

func TestSearxNG_TimeRangeOnlyWhenBucketCovers(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.Query().Get("time_range"))
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	s := &SearxNG{BaseURL: srv.URL, HTTPClient: srv.Client()}
	for _, start := range []time.Time{
		time.Now().AddDate(-5, 0, 0),
		time.Now().AddDate(-1, 0, 0).Add(time.Hour),
		time.Now().AddDate(0, 0, -3),
	} {
		start := start
		if _, err := s.Search(context.Background(), Request{Query: "q", StartPublished: &start}); err != nil {
			t.Fatalf("search: %v", err)
		}
	}
	want := []string{"", "year", "week"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("time_range = %q, want %q", got, want)
	}
	if timeRange(time.Since(time.Now().AddDate(-5, 0, 0))) != "" {
		t.Fatalf("a five year window must not map to a bucket")
	}
}
