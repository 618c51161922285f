package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/nightrate/internal/models"
)

const eventColumns = `id, name, CAST(start_date AS TEXT) AS start_date, CAST(end_date AS TEXT) AS end_date,
	category, impact_score, multiplier, source`

// eventRow mirrors the events table; dates travel as YYYY-MM-DD text for both drivers.
type eventRow struct {
	ID          int64           `db:"id"`
	Name        string          `db:"name"`
	StartDate   string          `db:"start_date"`
	EndDate     string          `db:"end_date"`
	Category    string          `db:"category"`
	ImpactScore int             `db:"impact_score"`
	Multiplier  decimal.Decimal `db:"multiplier"`
	Source      string          `db:"source"`
}

func (r eventRow) toModel() (*models.Event, error) {
	start, err := models.ParseDate(r.StartDate)
	if err != nil {
		return nil, fmt.Errorf("event %d start_date: %w", r.ID, err)
	}
	end, err := models.ParseDate(r.EndDate)
	if err != nil {
		return nil, fmt.Errorf("event %d end_date: %w", r.ID, err)
	}
	return &models.Event{
		ID:          r.ID,
		Name:        r.Name,
		StartDate:   start,
		EndDate:     end,
		Category:    models.Category(r.Category),
		ImpactScore: r.ImpactScore,
		Multiplier:  r.Multiplier,
		Source:      models.Source(r.Source),
	}, nil
}

// InsertEvent stores e unless an event with the same (name, start_date, end_date) exists.
// It reports whether a row was created; a collision is not an error. On insert, e.ID is set.
func (s *Storage) InsertEvent(ctx context.Context, e *models.Event) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, fmt.Errorf("invalid event: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := s.db.Rebind(`
		INSERT INTO events (name, start_date, end_date, category, impact_score, multiplier, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, start_date, end_date) DO NOTHING
		RETURNING id`)

	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		e.Name, models.FormatDate(e.StartDate), models.FormatDate(e.EndDate),
		string(e.Category), e.ImpactScore, e.Multiplier.String(), string(e.Source),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, models.StoreUnavailable("insert event "+e.Name, err)
	}

	e.ID = id
	return true, nil
}

// SeedCurated inserts curated events idempotently and returns how many were new.
// The whole seed list is attempted; the first failure is returned after the loop.
func (s *Storage) SeedCurated(ctx context.Context, events []models.Event) (int, error) {
	inserted := 0
	var firstErr error
	for i := range events {
		e := events[i]
		e.Source = models.SourceCurated
		ok, err := s.InsertEvent(ctx, &e)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			inserted++
		}
	}
	return inserted, firstErr
}

// EventForDate returns the highest-impact event whose range contains date.
// Among equal impact the earliest inserted event (lowest id) wins.
// It returns nil, nil when no event is active.
func (s *Storage) EventForDate(ctx context.Context, date time.Time) (*models.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	d := models.FormatDate(date)
	query := s.db.Rebind(`SELECT ` + eventColumns + `
		FROM events
		WHERE start_date <= ? AND end_date >= ?
		ORDER BY impact_score DESC, id ASC
		LIMIT 1`)

	var row eventRow
	err := s.db.GetContext(ctx, &row, query, d, d)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.StoreUnavailable("find event for "+d, err)
	}

	e, err := row.toModel()
	if err != nil {
		return nil, models.StoreUnavailable("decode event", err)
	}
	return e, nil
}

// UpcomingEvents returns events that have not ended before from, ordered by start date.
func (s *Storage) UpcomingEvents(ctx context.Context, from time.Time, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 10
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := s.db.Rebind(`SELECT ` + eventColumns + `
		FROM events
		WHERE end_date >= ?
		ORDER BY start_date ASC, id ASC
		LIMIT ?`)

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, models.FormatDate(from), limit); err != nil {
		return nil, models.StoreUnavailable("list upcoming events", err)
	}

	events := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		e, err := r.toModel()
		if err != nil {
			return nil, models.StoreUnavailable("decode event", err)
		}
		events = append(events, *e)
	}
	return events, nil
}

// CountEvents returns the number of stored events.
func (s *Storage) CountEvents(ctx context.Context) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM events"); err != nil {
		return 0, models.StoreUnavailable("count events", err)
	}
	return n, nil
}
