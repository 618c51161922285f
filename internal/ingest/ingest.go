// Package ingest pulls candidate events from every configured feed, classifies the dated
// ones and merges them into the event store without duplicates.
//
// Feeds are fetched concurrently but merged in configured order, so two runs over the
// same feed output insert the same rows in the same order. A failing feed or a failing
// record never aborts the run; both are collected on the Result.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/nightrate/internal/classifier"
	"github.com/rewired-gh/nightrate/internal/feeds"
	"github.com/rewired-gh/nightrate/internal/lock"
	"github.com/rewired-gh/nightrate/internal/logger"
	"github.com/rewired-gh/nightrate/internal/metrics"
	"github.com/rewired-gh/nightrate/internal/models"
)

// ErrRunInProgress is returned when another ingestion run holds the run lock.
var ErrRunInProgress = errors.New("ingestion run already in progress")

const (
	lockKey            = "ingest"
	defaultLockTTL     = 10 * time.Minute
	defaultConcurrency = 4
)

// EventWriter is the slice of the event store ingestion needs.
type EventWriter interface {
	InsertEvent(ctx context.Context, e *models.Event) (bool, error)
}

// FeedError represents a feed that could not be pulled during a run.
type FeedError struct {
	Feed string
	Err  error
}

func (e FeedError) Error() string {
	return fmt.Sprintf("feed error for %s: %v", e.Feed, e.Err)
}

func (e FeedError) Unwrap() error { return e.Err }

// RecordError represents a candidate that could not be persisted.
type RecordError struct {
	Feed  string
	Event string
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record error for %q from %s: %v", e.Event, e.Feed, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// Result summarizes one ingestion run.
type Result struct {
	RunID        string
	Stored       int // newly stored events
	Duplicates   int
	Discarded    int // undated or inverted candidates
	FeedErrors   []FeedError
	RecordErrors []RecordError
	Duration     time.Duration
}

// Pipeline runs ingestion over a fixed set of feeds.
type Pipeline struct {
	feeds       []feeds.Feed
	store       EventWriter
	classifier  *classifier.Classifier
	locker      lock.Locker
	lockTTL     time.Duration
	metrics     *metrics.Metrics
	concurrency int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLocker serializes runs across processes through l.
func WithLocker(l lock.Locker, ttl time.Duration) Option {
	return func(p *Pipeline) {
		p.locker = l
		if ttl > 0 {
			p.lockTTL = ttl
		}
	}
}

// WithMetrics records run outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithConcurrency bounds the number of feeds fetched at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// New creates a Pipeline. Feeds are merged in the order given.
func New(fs []feeds.Feed, store EventWriter, c *classifier.Classifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		feeds:       fs,
		store:       store,
		classifier:  c,
		lockTTL:     defaultLockTTL,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feeds returns the configured feed names in merge order.
func (p *Pipeline) Feeds() []string {
	names := make([]string, len(p.feeds))
	for i, f := range p.feeds {
		names[i] = f.Name()
	}
	return names
}

type fetched struct {
	events []models.RawEvent
	err    error
}

// Ingest runs one ingestion pass and returns the number of newly stored events in
// Result.Stored. Feed and record failures are isolated and reported on the Result.
// If ctx is cancelled mid-run, committed rows stay and the partial Result is
// returned together with ctx.Err().
func (p *Pipeline) Ingest(ctx context.Context) (*Result, error) {
	if p.locker != nil {
		release, err := p.locker.Acquire(ctx, lockKey, p.lockTTL)
		if errors.Is(err, lock.ErrLockHeld) {
			p.metrics.IngestSkipped()
			return nil, ErrRunInProgress
		}
		if err != nil {
			return nil, fmt.Errorf("acquire ingestion lock: %w", err)
		}
		defer release()
	}

	start := time.Now()
	result := &Result{RunID: uuid.New().String()}
	logger.Info("Ingestion run %s started over %d feed(s)", result.RunID, len(p.feeds))

	pulled := p.fetchAll(ctx)

	var runErr error
merge:
	for i, f := range p.feeds {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		if pulled[i].err != nil {
			logger.Warn("Feed %s unavailable: %v", f.Name(), pulled[i].err)
			result.FeedErrors = append(result.FeedErrors, FeedError{Feed: f.Name(), Err: pulled[i].err})
			continue
		}

		for _, raw := range pulled[i].events {
			if err := ctx.Err(); err != nil {
				runErr = err
				break merge
			}
			p.mergeOne(ctx, f.Name(), raw, result)
		}
	}

	result.Duration = time.Since(start)
	p.metrics.ObserveIngest(metrics.IngestRun{
		Stored:      result.Stored,
		Duplicates:  result.Duplicates,
		Discarded:   result.Discarded,
		FeedErrors:  len(result.FeedErrors),
		StoreErrors: len(result.RecordErrors),
		Duration:    result.Duration,
		Cancelled:   runErr != nil,
	})

	logger.Info("Ingestion run %s finished in %v: stored=%d duplicates=%d discarded=%d feed_errors=%d record_errors=%d",
		result.RunID, result.Duration.Round(time.Millisecond), result.Stored, result.Duplicates, result.Discarded,
		len(result.FeedErrors), len(result.RecordErrors))

	return result, runErr
}

// fetchAll pulls every feed with bounded concurrency. Results keep feed order.
func (p *Pipeline) fetchAll(ctx context.Context) []fetched {
	out := make([]fetched, len(p.feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, f := range p.feeds {
		i, f := i, f
		g.Go(func() error {
			events, err := f.Fetch(gctx)
			if err != nil && !errors.Is(err, models.ErrFeedUnavailable) {
				err = models.FeedUnavailable(f.Name(), err)
			}
			out[i] = fetched{events: events, err: err}
			// Feed failures are isolated; never cancel sibling fetches.
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (p *Pipeline) mergeOne(ctx context.Context, feed string, raw models.RawEvent, result *Result) {
	if !raw.Dated() || raw.End.Before(*raw.Start) {
		logger.Debug("Discarding candidate %q from %s: missing or inverted dates", raw.Name, feed)
		result.Discarded++
		return
	}

	c := p.classifier.Classify(raw)
	e := &models.Event{
		Name:        raw.Name,
		StartDate:   models.Civil(*raw.Start),
		EndDate:     models.Civil(*raw.End),
		Category:    c.Category,
		ImpactScore: c.Impact,
		Multiplier:  c.Multiplier,
		Source:      models.SourceDiscovered,
	}

	inserted, err := p.store.InsertEvent(ctx, e)
	if err != nil {
		logger.Warn("Failed to store %q from %s: %v", raw.Name, feed, err)
		result.RecordErrors = append(result.RecordErrors, RecordError{Feed: feed, Event: raw.Name, Err: err})
		return
	}
	if !inserted {
		result.Duplicates++
		return
	}

	result.Stored++
	logger.Debug("Stored event %q (%s, impact %d, x%s) from %s",
		e.Name, e.Category, e.ImpactScore, e.Multiplier.String(), feed)
}
