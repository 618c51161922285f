// Package pricing turns a calendar date into a bounded, explainable nightly price.
//
// The suggested price for a date is
//
//	clamp((base + market_adjustment) × event × season × day_of_week, min, max)
//
// rounded half away from zero to a whole currency unit. Each non-identity factor
// contributes one rationale entry, in the order event, season, day, market.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/nightrate/internal/metrics"
	"github.com/rewired-gh/nightrate/internal/models"
)

// EventReader resolves the governing event for a date.
type EventReader interface {
	EventForDate(ctx context.Context, date time.Time) (*models.Event, error)
}

// MarketReader averages competitor prices for a date.
type MarketReader interface {
	MarketAverage(ctx context.Context, date time.Time) (decimal.NullDecimal, error)
}

// Engine computes pricing decisions. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	cfg     Config
	events  EventReader
	market  MarketReader
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records decisions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New validates cfg and creates an Engine.
func New(cfg Config, events EventReader, market MarketReader, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pricing config: %w", err)
	}
	if events == nil || market == nil {
		return nil, fmt.Errorf("pricing engine requires an event reader and a market reader")
	}
	e := &Engine{cfg: cfg, events: events, market: market}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's calibration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Price returns the decision for date. Absent events or market data lower the
// confidence; only a reader failure is an error, and it wraps models.ErrStoreUnavailable.
func (e *Engine) Price(ctx context.Context, date time.Time) (*models.Decision, error) {
	start := time.Now()
	d, err := e.price(ctx, models.Civil(date))
	if err != nil {
		e.metrics.PriceFailed()
		return nil, err
	}
	e.metrics.ObservePrice(d.SuggestedPrice.InexactFloat64(), d.HasEvent(), d.MarketAvg != nil, time.Since(start))
	return d, nil
}

// PriceRange prices days consecutive dates starting at from.
// It fails as a whole on the first store error.
func (e *Engine) PriceRange(ctx context.Context, from time.Time, days int) ([]*models.Decision, error) {
	if days < 1 {
		return nil, fmt.Errorf("days must be >= 1, got %d", days)
	}
	from = models.Civil(from)
	out := make([]*models.Decision, 0, days)
	for i := 0; i < days; i++ {
		d, err := e.Price(ctx, from.AddDate(0, 0, i))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (e *Engine) price(ctx context.Context, date time.Time) (*models.Decision, error) {
	one := decimal.NewFromInt(1)
	var factors []string

	base := e.basePrice(date)

	event, err := e.events.EventForDate(ctx, date)
	if err != nil {
		return nil, models.StoreUnavailable("event lookup", err)
	}
	eventMult := one
	if event != nil {
		eventMult = event.Multiplier
		factors = append(factors, fmt.Sprintf("Event: %s (x%s)", event.Name, event.Multiplier.String()))
	}

	seasonMult := e.seasonMultiplier(date.Month())
	if !seasonMult.Equal(one) {
		factors = append(factors, fmt.Sprintf("Season: %s (x%s)", date.Month(), seasonMult.String()))
	}

	dowMult := e.dowMultiplier(date.Weekday())
	if !dowMult.Equal(one) {
		factors = append(factors, fmt.Sprintf("Day: %s (x%s)", date.Weekday().String()[:3], dowMult.String()))
	}

	avg, err := e.market.MarketAverage(ctx, date)
	if err != nil {
		return nil, models.StoreUnavailable("market average", err)
	}
	adj := decimal.Zero
	var marketAvg, marketAdj *decimal.Decimal
	if avg.Valid && avg.Decimal.IsPositive() {
		adj = avg.Decimal.Sub(base).Mul(e.cfg.MarketWeight)
		a := avg.Decimal.Round(2)
		r := adj.Round(2)
		marketAvg, marketAdj = &a, &r
		factors = append(factors, fmt.Sprintf("Market: %s%s (adj: %s%s)",
			e.cfg.Currency, avg.Decimal.StringFixed(0), e.cfg.Currency, signed(adj)))
	}

	calculated := base.Add(adj).Mul(eventMult).Mul(seasonMult).Mul(dowMult)
	final := clamp(calculated, e.cfg.MinPrice, e.cfg.MaxPrice).Round(0)

	d := &models.Decision{
		Date:             date,
		SuggestedPrice:   final,
		BasePrice:        base,
		MarketAvg:        marketAvg,
		SeasonMultiplier: seasonMult,
		DOWMultiplier:    dowMult,
		Reasoning: models.Reasoning{
			Factors:          factors,
			MarketAdjustment: marketAdj,
			Calculated:       calculated.Round(2),
		},
		Confidence: e.confidence(marketAvg != nil, event != nil),
	}
	if event != nil {
		m := event.Multiplier
		d.EventMultiplier = &m
		d.EventName = event.Name
	}
	return d, nil
}

func (e *Engine) basePrice(date time.Time) decimal.Decimal {
	switch date.Weekday() {
	case time.Friday, time.Saturday:
		return e.cfg.BaseWeekend
	default:
		return e.cfg.BaseWeekday
	}
}

func (e *Engine) seasonMultiplier(m time.Month) decimal.Decimal {
	if v, ok := e.cfg.SeasonMultipliers[m]; ok {
		return v
	}
	return decimal.NewFromInt(1)
}

func (e *Engine) dowMultiplier(wd time.Weekday) decimal.Decimal {
	switch wd {
	case time.Friday, time.Saturday:
		return e.cfg.WeekendMultiplier
	case time.Sunday:
		return e.cfg.SundayDiscount
	default:
		return decimal.NewFromInt(1)
	}
}

// confidence is a heuristic in [0, 1]. Terms are summed in decimal so the
// configured values come back exactly.
func (e *Engine) confidence(hasMarket, hasEvent bool) float64 {
	c := decimal.NewFromFloat(e.cfg.ConfidenceBase)
	if hasMarket {
		c = c.Add(decimal.NewFromFloat(e.cfg.ConfidenceMarketBonus))
	}
	if hasEvent {
		c = c.Add(decimal.NewFromFloat(e.cfg.ConfidenceEventBonus))
	}
	c = decimal.Min(c, decimal.NewFromInt(1))
	return c.InexactFloat64()
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	return decimal.Max(lo, decimal.Min(v, hi))
}

func signed(d decimal.Decimal) string {
	s := d.StringFixed(0)
	if !d.IsNegative() {
		return "+" + s
	}
	return s
}
