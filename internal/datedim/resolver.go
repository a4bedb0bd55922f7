// Package datedim maps calendar dates to the dense surrogate keys every
// versioned staging row carries, and bulk-loads the calendar reference table
// from its CSV export.
package datedim

import (
	"context"
	"fmt"
	"time"

	"stagingloader/internal/storage"
)

// NotFoundError reports a date outside the loaded calendar range. It is
// fatal for the enclosing run: no versioned row can be written without a
// date key, and the remedy is operational (reload the calendar), not a
// retry.
type NotFoundError struct {
	Date string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("date %s not present in %s", e.Date, storage.DateDimTableName)
}

// Resolver holds the full date→key mapping in memory. The calendar is a few
// tens of thousands of rows, so one bulk query at construction replaces all
// per-row lookups.
type Resolver struct {
	keys map[string]int64
}

func NewResolver(ctx context.Context, repo storage.Repository) (*Resolver, error) {
	keys, err := repo.DateKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("datedim: load calendar keys: %w", err)
	}
	return &Resolver{keys: keys}, nil
}

// Resolve returns the surrogate key for t's calendar date (UTC).
func (r *Resolver) Resolve(t time.Time) (int64, error) {
	d := t.UTC().Format("2006-01-02")
	sk, ok := r.keys[d]
	if !ok {
		return 0, &NotFoundError{Date: d}
	}
	return sk, nil
}

// Len reports the number of loaded calendar dates.
func (r *Resolver) Len() int { return len(r.keys) }
