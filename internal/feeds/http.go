package feeds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rewired-gh/nightrate/internal/logger"
	"github.com/rewired-gh/nightrate/internal/models"
)

const maxBodyBytes = 10 << 20

// ClientConfig tunes the HTTP behaviour of an HTTPFeed.
type ClientConfig struct {
	Timeout           time.Duration
	MaxRetries        int
	RetryDelayBase    time.Duration
	RequestsPerSecond float64 // 0 disables client-side limiting
}

// DefaultClientConfig returns conservative defaults for public event APIs.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:           30 * time.Second,
		MaxRetries:        3,
		RetryDelayBase:    time.Second,
		RequestsPerSecond: 1,
	}
}

// HTTPFeed fetches a JSON document of events over HTTP.
//
// The document is either an array of records or an object with an "events" array.
// Records use name|title, description, start|start_date, end|end_date and capacity.
type HTTPFeed struct {
	name           string
	url            string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryDelayBase time.Duration
}

// NewHTTPFeed creates a feed reading url.
func NewHTTPFeed(name, url string, cfg ClientConfig) *HTTPFeed {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &HTTPFeed{
		name: name,
		url:  url,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:        limiter,
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// Name returns the feed name.
func (f *HTTPFeed) Name() string { return f.name }

// Fetch downloads and decodes the feed document.
// Records without a name are skipped; unparseable dates are left absent.
func (f *HTTPFeed) Fetch(ctx context.Context) ([]models.RawEvent, error) {
	body, err := f.doRequest(ctx)
	if err != nil {
		return nil, models.FeedUnavailable(f.name, err)
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, models.FeedUnavailable(f.name, fmt.Errorf("failed to decode events: %w", err))
	}

	events := make([]models.RawEvent, 0, len(records))
	for _, r := range records {
		raw, ok := r.toRaw()
		if !ok {
			continue
		}
		events = append(events, raw)
	}

	logger.Debug("Feed %s returned %d records (%d usable)", f.name, len(records), len(events))
	return events, nil
}

// doRequest performs the GET with retry on transport errors and 5xx responses.
func (f *HTTPFeed) doRequest(ctx context.Context) ([]byte, error) {
	var lastErr error

	for i := 0; i < f.maxRetries; i++ {
		if i > 0 {
			if err := sleepCtx(ctx, time.Duration(i)*f.retryDelayBase); err != nil {
				return nil, err
			}
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := f.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Debug("Feed %s attempt %d/%d failed: %v", f.name, i+1, f.maxRetries, err)
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			logger.Debug("Feed %s attempt %d/%d failed: %v", f.name, i+1, f.maxRetries, lastErr)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// record is the tolerant wire shape of one feed entry.
type record struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Start       string   `json:"start"`
	StartDate   string   `json:"start_date"`
	End         string   `json:"end"`
	EndDate     string   `json:"end_date"`
	Capacity    capacity `json:"capacity"`
}

func decodeRecords(body []byte) ([]record, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var records []record
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var envelope struct {
		Events []record `json:"events"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	return envelope.Events, nil
}

func (r record) toRaw() (models.RawEvent, bool) {
	name := strings.TrimSpace(firstNonEmpty(r.Name, r.Title))
	if name == "" {
		return models.RawEvent{}, false
	}
	return models.RawEvent{
		Name:        name,
		Description: strings.TrimSpace(r.Description),
		Start:       parseFeedDate(firstNonEmpty(r.Start, r.StartDate)),
		End:         parseFeedDate(firstNonEmpty(r.End, r.EndDate)),
		Capacity:    int(r.Capacity),
	}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseFeedDate accepts YYYY-MM-DD or RFC 3339 and returns the civil date, or nil.
func parseFeedDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if d, err := models.ParseDate(s); err == nil {
		return &d
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		d := models.Civil(t)
		return &d
	}
	return nil
}

// capacity accepts a JSON number or a numeric string; anything else reads as 0.
// Values saturate to [0, math.MaxInt32] so oversized attendance stays the largest bucket.
type capacity int

func (c *capacity) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		*c = 0
		return nil
	}
	switch {
	case math.IsNaN(f) || f <= 0:
		*c = 0
	case f >= math.MaxInt32:
		*c = math.MaxInt32
	default:
		*c = capacity(f)
	}
	return nil
}
