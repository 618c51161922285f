// Package feeds pulls candidate events from external sources into the uniform
// models.RawEvent shape consumed by the ingestion pipeline.
package feeds

import (
	"context"

	"github.com/rewired-gh/nightrate/internal/models"
)

// Feed is one external source of candidate events.
type Feed interface {
	Name() string
	Fetch(ctx context.Context) ([]models.RawEvent, error)
}

// StaticFeed serves a fixed list of candidates, typically declared in configuration.
type StaticFeed struct {
	name   string
	events []models.RawEvent
}

// NewStaticFeed creates a feed that always returns events.
func NewStaticFeed(name string, events []models.RawEvent) *StaticFeed {
	return &StaticFeed{name: name, events: events}
}

// Name returns the feed name.
func (f *StaticFeed) Name() string { return f.name }

// Fetch returns a copy of the configured candidates.
func (f *StaticFeed) Fetch(ctx context.Context) ([]models.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.FeedUnavailable(f.name, err)
	}
	out := make([]models.RawEvent, len(f.events))
	copy(out, f.events)
	return out, nil
}
