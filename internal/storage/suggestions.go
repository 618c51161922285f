package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/nightrate/internal/models"
)

// SaveSuggestion upserts a pricing decision keyed by its date.
func (s *Storage) SaveSuggestion(ctx context.Context, d *models.Decision) error {
	reasoning, err := json.Marshal(d.Reasoning)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := s.db.Rebind(`
		INSERT INTO pricing_suggestions
			(date, suggested_price, base_price, market_avg, event_multiplier, event_name, reasoning, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date) DO UPDATE SET
			suggested_price  = excluded.suggested_price,
			base_price       = excluded.base_price,
			market_avg       = excluded.market_avg,
			event_multiplier = excluded.event_multiplier,
			event_name       = excluded.event_name,
			reasoning        = excluded.reasoning,
			confidence       = excluded.confidence`)

	eventName := sql.NullString{String: d.EventName, Valid: d.EventName != ""}
	if _, err := s.db.ExecContext(ctx, query,
		models.FormatDate(d.Date), d.SuggestedPrice.String(), d.BasePrice.String(), optionalDecimal(d.MarketAvg), optionalDecimal(d.EventMultiplier),
		eventName, string(reasoning), d.Confidence,
	); err != nil {
		return models.StoreUnavailable("save suggestion for "+models.FormatDate(d.Date), err)
	}
	return nil
}

func optionalDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}
