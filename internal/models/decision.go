package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Reasoning explains how a suggested price was assembled.
type Reasoning struct {
	Factors          []string         `json:"factors"`
	MarketAdjustment *decimal.Decimal `json:"market_adjustment,omitempty"`
	Calculated       decimal.Decimal  `json:"calculated"` // before clamping, 2 decimals
}

// Decision is the pricing engine's output for one date.
type Decision struct {
	Date             time.Time        `json:"-"`
	SuggestedPrice   decimal.Decimal  `json:"suggested_price"`
	BasePrice        decimal.Decimal  `json:"base_price"`
	MarketAvg        *decimal.Decimal `json:"market_avg,omitempty"`
	EventMultiplier  *decimal.Decimal `json:"event_multiplier,omitempty"`
	EventName        string           `json:"event_name,omitempty"`
	SeasonMultiplier decimal.Decimal  `json:"season_multiplier"`
	DOWMultiplier    decimal.Decimal  `json:"dow_multiplier"`
	Reasoning        Reasoning        `json:"reasoning"`
	Confidence       float64          `json:"confidence"`
}

// HasEvent reports whether an event factor was applied.
func (d *Decision) HasEvent() bool {
	return d.EventName != ""
}

// MarshalJSON renders the date as YYYY-MM-DD alongside the other fields.
func (d Decision) MarshalJSON() ([]byte, error) {
	type plain Decision
	return json.Marshal(struct {
		Date string `json:"date"`
		plain
	}{
		Date:  FormatDate(d.Date),
		plain: plain(d),
	})
}
