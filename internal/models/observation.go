package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PriceObservation is one competitor's observed nightly price for one date.
// Several observations for the same competitor and date may coexist.
type PriceObservation struct {
	CompetitorReference string              `json:"competitor_reference"`
	Date                time.Time           `json:"date"`
	Price               decimal.NullDecimal `json:"price"` // invalid means "not observed"
	Available           bool                `json:"available"`
}

// Validate checks that all observation fields are valid
func (o *PriceObservation) Validate() error {
	if o.CompetitorReference == "" {
		return errors.New("competitor reference must not be empty")
	}
	if o.Date.IsZero() {
		return errors.New("observation date is required")
	}
	if o.Price.Valid && o.Price.Decimal.IsNegative() {
		return errors.New("observed price must not be negative")
	}
	return nil
}
