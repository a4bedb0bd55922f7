package storage

import (
	"context"
	"fmt"
	"sync"
)

// Config is the minimal configuration needed to create a repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is the backend-agnostic persistence interface of the staging
// loader. Each backend implements these semantics in its own idiomatic way
// (Postgres ON CONFLICT, SQLite OR IGNORE, MSSQL MERGE-free NOT EXISTS, etc).
//
// Transaction granularity contract:
//   - Every dimension write (InsertVersion / UpdateCurrent / UpdateVersionAt)
//     is atomic on its own: a failure leaves the row untouched and the batch
//     may continue with the next record.
//   - ReplaceCalendar is atomic as a whole (truncate + insert in one tx).
type Repository interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// EnsureSchema creates tables and constraints as needed
	// (create-if-not-exists semantics, safe to call at every startup).
	EnsureSchema(ctx context.Context) error

	// ---- raw payload audit ----

	// RetainedRawRecords returns raw records whose content is still retained
	// for dedup purposes: status SUCCESS or PROCESSED, non-empty payload.
	// FAILED records are never returned (they carry no payload).
	RetainedRawRecords(ctx context.Context) ([]RawRecord, error)

	// InsertRawRecord persists one raw record and returns its id.
	InsertRawRecord(ctx context.Context, rec RawRecord) (int64, error)

	// DeleteRawRecords removes raw records by id, returning the count removed.
	DeleteRawRecords(ctx context.Context, ids []int64) (int64, error)

	// MarkRawProcessed flips records to PROCESSED after their entities have
	// been absorbed into the staging tables.
	MarkRawProcessed(ctx context.Context, ids []int64) error

	// ---- versioned staging tables ----

	// NaturalKeys returns the distinct natural keys present in a table.
	// Used exactly once per table per batch to seed the identity cache.
	NaturalKeys(ctx context.Context, table TableSpec) (map[string]struct{}, error)

	// LatestVersion returns the newest row (by date key) for a natural key,
	// or nil when the key has no rows. Tracked values come back normalized
	// per NormalizeValue.
	LatestVersion(ctx context.Context, table TableSpec, key string) (*Version, error)

	// InsertVersion inserts a new row for a natural key, dated dateKey.
	// values align with table.Tracked.
	InsertVersion(ctx context.Context, table TableSpec, key string, values []any, dateKey int64) error

	// UpdateCurrent overwrites the single row for a natural key, advancing
	// its date key. Used by the overwrite-in-place policy.
	UpdateCurrent(ctx context.Context, table TableSpec, key string, values []any, dateKey int64) error

	// UpdateVersionAt overwrites the row for (key, dateKey) in place. Used by
	// the append policy to collapse same-day corrections.
	UpdateVersionAt(ctx context.Context, table TableSpec, key string, values []any, dateKey int64) error

	// ---- calendar reference ----

	// DateKeys returns the full calendar as full_date ("2006-01-02") -> date key.
	DateKeys(ctx context.Context) (map[string]int64, error)

	// ReplaceCalendar truncates the date dimension and loads rows atomically.
	// rows align with CalendarColumns.
	ReplaceCalendar(ctx context.Context, rows [][]any) error

	// ---- load audit ----

	// AppendLoadLog appends one load-log entry. Write-once, read-many.
	AppendLoadLog(ctx context.Context, e LoadLogEntry) error
}

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package. Registering the
// same kind twice panics; this is intentional to fail fast and avoid
// ambiguous backend selection.
func Register(kind string, f factory) {
	regMu.Lock()
	defer regMu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	regMu.RLock()
	f := factories[cfg.Kind]
	regMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
