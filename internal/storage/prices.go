package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/nightrate/internal/models"
)

// AddObservation records one competitor price observation.
// The competitor scraper owns this write path; the pricing engine only reads averages.
func (s *Storage) AddObservation(ctx context.Context, o *models.PriceObservation) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid observation: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := s.db.Rebind(`
		INSERT INTO price_history (competitor_reference, date, price, available)
		VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		o.CompetitorReference, models.FormatDate(o.Date), nullableDecimal(o.Price), o.Available,
	); err != nil {
		return models.StoreUnavailable("insert observation", err)
	}
	return nil
}

// MarketAverage averages available, positively priced observations for date.
// The result is invalid when no such observation exists.
func (s *Storage) MarketAverage(ctx context.Context, date time.Time) (decimal.NullDecimal, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	d := models.FormatDate(date)
	query := s.db.Rebind(`
		SELECT AVG(price)
		FROM price_history
		WHERE date = ? AND available = TRUE AND price > 0`)

	var avg decimal.NullDecimal
	if err := s.db.GetContext(ctx, &avg, query, d); err != nil {
		return decimal.NullDecimal{}, models.StoreUnavailable("average market price for "+d, err)
	}
	return avg, nil
}

// nullableDecimal converts to a driver-neutral value: decimal text or NULL.
func nullableDecimal(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
