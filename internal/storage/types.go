package storage

import "time"

// Raw record load statuses.
//
// Lifecycle: SUCCESS -> PROCESSED once the staging pass absorbs the row, or
// FAILED when the file never validated. SUCCESS and PROCESSED records retain
// their payload and participate in ingest dedup; FAILED records store no
// content.
const (
	RawStatusSuccess   = "SUCCESS"
	RawStatusFailed    = "FAILED"
	RawStatusProcessed = "PROCESSED"
)

// Load log statuses.
const (
	LoadStatusSuccess = "SUCCESS"
	LoadStatusPartial = "PARTIAL"
	LoadStatusFailed  = "FAILED"
)

// RawRecord is one audited copy of crawler output.
type RawRecord struct {
	ID       int64
	Filename string
	Payload  []byte // JSON array of items; empty for FAILED records
	Status   string
	LoadedAt time.Time
	Error    string
}

// Version is the latest known snapshot of a natural key in a staging table.
// Values align with TableSpec.Tracked and are normalized per NormalizeValue.
type Version struct {
	Values  []any
	DateKey int64
}

// LoadLogEntry is one append-only audit row describing a (batch, table) load.
type LoadLogEntry struct {
	BatchID     string
	TableName   string
	RecordCount int
	Inserted    int
	Updated     int
	Skipped     int
	Failed      int
	Status      string
	StartedAt   time.Time
	EndedAt     time.Time
	SourceFile  string
	Error       string
}
