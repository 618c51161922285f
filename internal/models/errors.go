package models

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable marks any failed read or write against a persistent store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrFeedUnavailable marks a failed pull from one ingestion feed.
	ErrFeedUnavailable = errors.New("feed unavailable")
)

// StoreUnavailable wraps err so that errors.Is(result, ErrStoreUnavailable) holds.
func StoreUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// FeedUnavailable wraps err so that errors.Is(result, ErrFeedUnavailable) holds.
func FeedUnavailable(feed string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrFeedUnavailable) {
		return fmt.Errorf("feed %s: %w", feed, err)
	}
	return fmt.Errorf("feed %s: %w: %w", feed, ErrFeedUnavailable, err)
}
