package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/nightrate/internal/classifier"
	"github.com/rewired-gh/nightrate/internal/feeds"
	"github.com/rewired-gh/nightrate/internal/ingest"
	"github.com/rewired-gh/nightrate/internal/metrics"
	"github.com/rewired-gh/nightrate/internal/models"
	"github.com/rewired-gh/nightrate/internal/storage"
)

func TestNextReportTime(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("zoneinfo unavailable: %v", err)
	}

	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{"later today", time.Date(2026, 2, 6, 5, 0, 0, 0, rome), 7, time.Date(2026, 2, 6, 7, 0, 0, 0, rome)},
		{"exactly on the hour rolls over", time.Date(2026, 2, 6, 7, 0, 0, 0, rome), 7, time.Date(2026, 2, 7, 7, 0, 0, 0, rome)},
		{"after the hour", time.Date(2026, 2, 6, 9, 15, 0, 0, rome), 7, time.Date(2026, 2, 7, 7, 0, 0, 0, rome)},
		{"month end", time.Date(2026, 2, 28, 23, 0, 0, 0, rome), 7, time.Date(2026, 3, 1, 7, 0, 0, 0, rome)},
		{"utc input", time.Date(2026, 2, 6, 5, 30, 0, 0, time.UTC), 7, time.Date(2026, 2, 7, 7, 0, 0, 0, rome)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextReportTime(tt.now, tt.hour, rome)
			if !got.Equal(tt.want) {
				t.Errorf("nextReportTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

type downFeed struct{ name string }

func (f downFeed) Name() string { return f.name }

func (f downFeed) Fetch(ctx context.Context) ([]models.RawEvent, error) {
	return nil, errors.New("timeout")
}

func TestRunIngestCycle(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.Config{Driver: storage.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	cls, err := classifier.New(classifier.Config{})
	if err != nil {
		t.Fatal(err)
	}

	allDown := []feeds.Feed{downFeed{"a"}, downFeed{"b"}}
	if err := runIngestCycle(ctx, ingest.New(allDown, store, cls), len(allDown)); !errors.Is(err, models.ErrFeedUnavailable) {
		t.Errorf("Expected feed error when every feed fails, got %v", err)
	}

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	partial := []feeds.Feed{downFeed{"a"}, feeds.NewStaticFeed("ok", []models.RawEvent{{Name: "Expo", Start: &day, End: &day}})}
	if err := runIngestCycle(ctx, ingest.New(partial, store, cls), len(partial)); err != nil {
		t.Errorf("Expected partial success to count as healthy, got %v", err)
	}
}

type fakeHealth struct{ err error }

func (f fakeHealth) Health(ctx context.Context) error { return f.err }

func TestMetricsMux(t *testing.T) {
	m := metrics.New()
	m.ObservePrice(121, false, false, time.Millisecond)

	tests := []struct {
		name       string
		path       string
		health     error
		wantStatus int
		wantBody   string
	}{
		{"metrics", "/metrics", nil, http.StatusOK, "nightrate_pricing_decisions_total"},
		{"healthy store", "/healthz", nil, http.StatusOK, "ok"},
		{"store down", "/healthz", models.StoreUnavailable("ping database", errors.New("refused")), http.StatusServiceUnavailable, "store unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newMetricsMux(m, fakeHealth{err: tt.health}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("Body missing %q:\n%s", tt.wantBody, rec.Body.String())
			}
		})
	}
}
