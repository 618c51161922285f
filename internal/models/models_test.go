package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func TestEventValidate(t *testing.T) {
	start := time.Date(2026, 4, 21, 0, 0, 0, 0, time.UTC)
	valid := Event{
		Name:        "Salone del Mobile Milano",
		StartDate:   start,
		EndDate:     start.AddDate(0, 0, 5),
		Category:    CategoryFair,
		ImpactScore: 10,
		Multiplier:  decimal.RequireFromString("2.3"),
		Source:      SourceCurated,
	}

	tests := []struct {
		name    string
		mutate  func(e *Event)
		wantErr bool
	}{
		{name: "valid event", mutate: func(e *Event) {}, wantErr: false},
		{name: "single day event", mutate: func(e *Event) { e.EndDate = e.StartDate }, wantErr: false},
		{name: "empty name", mutate: func(e *Event) { e.Name = "" }, wantErr: true},
		{name: "end before start", mutate: func(e *Event) { e.EndDate = e.StartDate.AddDate(0, 0, -1) }, wantErr: true},
		{name: "missing start", mutate: func(e *Event) { e.StartDate = time.Time{} }, wantErr: true},
		{name: "unknown category", mutate: func(e *Event) { e.Category = "circus" }, wantErr: true},
		{name: "impact zero", mutate: func(e *Event) { e.ImpactScore = 0 }, wantErr: true},
		{name: "impact eleven", mutate: func(e *Event) { e.ImpactScore = 11 }, wantErr: true},
		{name: "multiplier exactly one", mutate: func(e *Event) { e.Multiplier = decimal.NewFromInt(1) }, wantErr: true},
		{name: "unknown source", mutate: func(e *Event) { e.Source = "scraped" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			err := e.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Event.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEventCovers(t *testing.T) {
	e := Event{
		StartDate: mustDate(t, "2026-02-06"),
		EndDate:   mustDate(t, "2026-02-22"),
	}

	tests := []struct {
		date string
		want bool
	}{
		{"2026-02-05", false},
		{"2026-02-06", true},
		{"2026-02-14", true},
		{"2026-02-22", true},
		{"2026-02-23", false},
	}
	for _, tt := range tests {
		if got := e.Covers(mustDate(t, tt.date)); got != tt.want {
			t.Errorf("Covers(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}

	// A timestamp late in the day still belongs to its calendar date.
	late := time.Date(2026, 2, 22, 23, 59, 0, 0, time.UTC)
	if !e.Covers(late) {
		t.Error("Covers should ignore the clock part of the date")
	}
}

func TestRawEventDated(t *testing.T) {
	d := mustDate(t, "2026-05-11")
	tests := []struct {
		name string
		raw  RawEvent
		want bool
	}{
		{"both dates", RawEvent{Name: "TUTTOFOOD", Start: &d, End: &d}, true},
		{"start only", RawEvent{Name: "TUTTOFOOD", Start: &d}, false},
		{"end only", RawEvent{Name: "TUTTOFOOD", End: &d}, false},
		{"no dates", RawEvent{Name: "TUTTOFOOD"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.raw.Dated(); got != tt.want {
				t.Errorf("Dated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPriceObservationValidate(t *testing.T) {
	d := mustDate(t, "2026-03-01")
	tests := []struct {
		name    string
		obs     PriceObservation
		wantErr bool
	}{
		{"observed price", PriceObservation{CompetitorReference: "845070499530356430", Date: d, Price: decimal.NewNullDecimal(decimal.NewFromInt(60)), Available: true}, false},
		{"not observed", PriceObservation{CompetitorReference: "845070499530356430", Date: d}, false},
		{"missing competitor", PriceObservation{Date: d}, true},
		{"missing date", PriceObservation{CompetitorReference: "x"}, true},
		{"negative price", PriceObservation{CompetitorReference: "x", Date: d, Price: decimal.NewNullDecimal(decimal.NewFromInt(-1))}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.obs.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("PriceObservation.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecisionMarshalJSON(t *testing.T) {
	adj := decimal.NewFromInt(21)
	avg := decimal.NewFromInt(150)
	d := Decision{
		Date:             mustDate(t, "2026-03-04"),
		SuggestedPrice:   decimal.NewFromInt(101),
		BasePrice:        decimal.NewFromInt(80),
		MarketAvg:        &avg,
		SeasonMultiplier: decimal.NewFromInt(1),
		DOWMultiplier:    decimal.NewFromInt(1),
		Reasoning: Reasoning{
			Factors:          []string{"Market: €150 (adj: €+21)"},
			MarketAdjustment: &adj,
			Calculated:       decimal.NewFromInt(101),
		},
		Confidence: 0.9,
	}

	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	out := string(raw)

	for _, want := range []string{`"date":"2026-03-04"`, `"suggested_price":"101"`, `"market_avg":"150"`, `"market_adjustment":"21"`, `"confidence":0.9`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
	for _, absent := range []string{"event_name", "event_multiplier"} {
		if strings.Contains(out, absent) {
			t.Errorf("did not expect %s in %s", absent, out)
		}
	}
}

func TestStoreUnavailable(t *testing.T) {
	base := errors.New("connection refused")
	err := StoreUnavailable("find event", base)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable in chain, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Errorf("expected original error in chain, got %v", err)
	}

	// Wrapping twice keeps a single kind marker.
	again := StoreUnavailable("price", err)
	if strings.Count(again.Error(), ErrStoreUnavailable.Error()) != 1 {
		t.Errorf("kind repeated in %q", again.Error())
	}

	if StoreUnavailable("noop", nil) != nil {
		t.Error("nil error should stay nil")
	}
}

func TestFeedUnavailable(t *testing.T) {
	err := FeedUnavailable("milano-events", errors.New("timeout"))
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Errorf("expected ErrFeedUnavailable in chain, got %v", err)
	}
	if !strings.Contains(err.Error(), "milano-events") {
		t.Errorf("expected feed name in %q", err.Error())
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-06-19")
	if err != nil {
		t.Fatalf("ParseDate failed: %v", err)
	}
	if d.Weekday() != time.Friday {
		t.Errorf("expected Friday, got %s", d.Weekday())
	}
	if FormatDate(d) != "2026-06-19" {
		t.Errorf("round trip mismatch: %s", FormatDate(d))
	}
	if _, err := ParseDate("19/06/2026"); err == nil {
		t.Error("expected error for non-ISO date")
	}
	if DaysBetween(mustDate(t, "2026-06-19"), mustDate(t, "2026-06-26")) != 7 {
		t.Error("DaysBetween should count whole days")
	}
}
