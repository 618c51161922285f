package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the engine's calibration. Every value is explicit; DefaultConfig
// returns the production calibration.
type Config struct {
	BaseWeekday decimal.Decimal // Sunday through Thursday
	BaseWeekend decimal.Decimal // Friday and Saturday
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal

	WeekendMultiplier decimal.Decimal // > 1
	SundayDiscount    decimal.Decimal // in (0, 1)
	MarketWeight      decimal.Decimal // in [0, 1]

	// SeasonMultipliers maps a month to its factor; a missing month is 1.0.
	SeasonMultipliers map[time.Month]decimal.Decimal

	ConfidenceBase        float64
	ConfidenceMarketBonus float64
	ConfidenceEventBonus  float64

	Currency string // symbol used in rationale text
}

// DefaultSeason returns the built-in month table: summer 1.2, shoulder months 1.1.
func DefaultSeason() map[time.Month]decimal.Decimal {
	high := decimal.RequireFromString("1.2")
	mid := decimal.RequireFromString("1.1")
	one := decimal.NewFromInt(1)
	return map[time.Month]decimal.Decimal{
		time.January:   one,
		time.February:  one,
		time.March:     one,
		time.April:     mid,
		time.May:       mid,
		time.June:      high,
		time.July:      high,
		time.August:    high,
		time.September: mid,
		time.October:   mid,
		time.November:  one,
		time.December:  one,
	}
}

// DefaultConfig returns the production calibration.
func DefaultConfig() Config {
	return Config{
		BaseWeekday:           decimal.NewFromInt(80),
		BaseWeekend:           decimal.NewFromInt(105),
		MinPrice:              decimal.NewFromInt(70),
		MaxPrice:              decimal.NewFromInt(250),
		WeekendMultiplier:     decimal.RequireFromString("1.15"),
		SundayDiscount:        decimal.RequireFromString("0.95"),
		MarketWeight:          decimal.RequireFromString("0.3"),
		SeasonMultipliers:     DefaultSeason(),
		ConfidenceBase:        0.7,
		ConfidenceMarketBonus: 0.2,
		ConfidenceEventBonus:  0.1,
		Currency:              "€",
	}
}

// Validate checks that all calibration values are usable.
func (c Config) Validate() error {
	zero := decimal.Zero
	one := decimal.NewFromInt(1)

	if !c.BaseWeekday.GreaterThan(zero) {
		return fmt.Errorf("base weekday price must be positive, got %s", c.BaseWeekday)
	}
	if !c.BaseWeekend.GreaterThan(zero) {
		return fmt.Errorf("base weekend price must be positive, got %s", c.BaseWeekend)
	}
	if !c.MinPrice.GreaterThan(zero) {
		return fmt.Errorf("min price must be positive, got %s", c.MinPrice)
	}
	if c.MinPrice.GreaterThan(c.MaxPrice) {
		return fmt.Errorf("min price (%s) must be <= max price (%s)", c.MinPrice, c.MaxPrice)
	}
	if !c.WeekendMultiplier.GreaterThan(one) {
		return fmt.Errorf("weekend multiplier must be > 1.0, got %s", c.WeekendMultiplier)
	}
	if !c.SundayDiscount.GreaterThan(zero) || !c.SundayDiscount.LessThan(one) {
		return fmt.Errorf("sunday discount must be in (0, 1), got %s", c.SundayDiscount)
	}
	if c.MarketWeight.LessThan(zero) || c.MarketWeight.GreaterThan(one) {
		return fmt.Errorf("market weight must be in [0, 1], got %s", c.MarketWeight)
	}
	for m, v := range c.SeasonMultipliers {
		if m < time.January || m > time.December {
			return fmt.Errorf("season multiplier for invalid month %d", m)
		}
		if !v.GreaterThan(zero) {
			return fmt.Errorf("season multiplier for %s must be positive, got %s", m, v)
		}
	}
	for name, v := range map[string]float64{
		"base":         c.ConfidenceBase,
		"market bonus": c.ConfidenceMarketBonus,
		"event bonus":  c.ConfidenceEventBonus,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("confidence %s must be in [0, 1], got %v", name, v)
		}
	}
	return nil
}
