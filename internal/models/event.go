// Package models defines the core domain entities for nightrate: demand events,
// competitor price observations and the pricing decisions derived from them.
// Stored entities carry a Validate method so every write path checks the same invariants.
package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Category tags the kind of demand shock an event represents.
type Category string

const (
	CategoryFair     Category = "fair"
	CategoryFashion  Category = "fashion"
	CategorySport    Category = "sport"
	CategoryConcert  Category = "concert"
	CategoryOlympics Category = "olympics"
	CategoryOther    Category = "other"
)

// Valid reports whether c is one of the fixed category tags.
func (c Category) Valid() bool {
	switch c {
	case CategoryFair, CategoryFashion, CategorySport, CategoryConcert, CategoryOlympics, CategoryOther:
		return true
	}
	return false
}

// Source records where a stored event came from.
type Source string

const (
	SourceCurated    Source = "curated"
	SourceDiscovered Source = "discovered"
)

// Valid reports whether s is a known provenance tag.
func (s Source) Valid() bool {
	return s == SourceCurated || s == SourceDiscovered
}

// Event is a named, inclusive date interval with a demand impact.
// (Name, StartDate, EndDate) is the natural key; overlapping intervals are allowed.
type Event struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	StartDate   time.Time       `json:"start_date"`
	EndDate     time.Time       `json:"end_date"`
	Category    Category        `json:"category"`
	ImpactScore int             `json:"impact_score"` // 1-10, higher = larger demand shock
	Multiplier  decimal.Decimal `json:"multiplier"`   // applied to the price while the event is active
	Source      Source          `json:"source"`
}

// Validate checks that all event fields are valid.
func (e *Event) Validate() error {
	if e.Name == "" {
		return errors.New("event name must not be empty")
	}
	if e.StartDate.IsZero() || e.EndDate.IsZero() {
		return errors.New("event start and end dates are required")
	}
	if e.EndDate.Before(e.StartDate) {
		return errors.New("event end date must be >= start date")
	}
	if !e.Category.Valid() {
		return errors.New("event category is not a known tag")
	}
	if e.ImpactScore < 1 || e.ImpactScore > 10 {
		return errors.New("impact score must be between 1 and 10")
	}
	if !e.Multiplier.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("event multiplier must be greater than 1.0")
	}
	if !e.Source.Valid() {
		return errors.New("event source must be curated or discovered")
	}
	return nil
}

// Covers reports whether the civil date d falls inside the event's inclusive range.
func (e *Event) Covers(d time.Time) bool {
	d = Civil(d)
	return !d.Before(Civil(e.StartDate)) && !d.After(Civil(e.EndDate))
}

// RawEvent is a candidate record pulled from an ingestion feed before classification.
// Only Name is guaranteed; undated candidates are informational and never stored.
type RawEvent struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Capacity    int        `json:"capacity,omitempty"`
}

// Dated reports whether the candidate carries both a start and an end date.
func (r *RawEvent) Dated() bool {
	return r.Start != nil && r.End != nil
}
