package sqlite

import (
	"context"
	"testing"
	"time"

	"stagingloader/internal/storage"
)

func newTestRepo(t *testing.T) storage.Repository {
	t.Helper()
	ctx := context.Background()

	repo, err := New(ctx, storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(repo.Close)

	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return repo
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second ensure schema: %v", err)
	}
}

func TestRawRecordLifecycle(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	loaded := time.Date(2023, 5, 1, 12, 30, 0, 0, time.UTC)
	id1, err := repo.InsertRawRecord(ctx, storage.RawRecord{
		Filename: "dump_a.json",
		Payload:  []byte(`[{"id":"v1"}]`),
		Status:   storage.RawStatusSuccess,
		LoadedAt: loaded,
	})
	if err != nil {
		t.Fatalf("insert raw: %v", err)
	}
	id2, err := repo.InsertRawRecord(ctx, storage.RawRecord{
		Filename: "dump_b.json",
		Payload:  []byte(`[{"id":"v2"}]`),
		Status:   storage.RawStatusSuccess,
		LoadedAt: loaded.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("insert raw: %v", err)
	}
	if id2 <= id1 {
		t.Fatalf("ids not increasing: %d then %d", id1, id2)
	}

	// Failed rows with empty payloads must not surface as retained content.
	if _, err := repo.InsertRawRecord(ctx, storage.RawRecord{
		Filename: "broken.json",
		Status:   storage.RawStatusFailed,
		LoadedAt: loaded,
		Error:    "schema validation failed",
	}); err != nil {
		t.Fatalf("insert failed raw: %v", err)
	}

	recs, err := repo.RetainedRawRecords(ctx)
	if err != nil {
		t.Fatalf("retained: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("retained = %d records, want 2", len(recs))
	}
	if recs[0].ID != id1 || recs[1].ID != id2 {
		t.Fatalf("retained order = %d,%d, want %d,%d", recs[0].ID, recs[1].ID, id1, id2)
	}
	if string(recs[0].Payload) != `[{"id":"v1"}]` {
		t.Fatalf("payload round-trip = %q", recs[0].Payload)
	}
	if !recs[0].LoadedAt.Equal(loaded) {
		t.Fatalf("loaded_at round-trip = %v, want %v", recs[0].LoadedAt, loaded)
	}

	if err := repo.MarkRawProcessed(ctx, []int64{id1}); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	recs, err = repo.RetainedRawRecords(ctx)
	if err != nil {
		t.Fatalf("retained after mark: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("processed rows should still be retained, got %d", len(recs))
	}
	if recs[0].Status != storage.RawStatusProcessed {
		t.Fatalf("status = %q, want %q", recs[0].Status, storage.RawStatusProcessed)
	}

	n, err := repo.DeleteRawRecords(ctx, []int64{id1})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
	recs, err = repo.RetainedRawRecords(ctx)
	if err != nil {
		t.Fatalf("retained after delete: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != id2 {
		t.Fatalf("unexpected retained set after delete: %+v", recs)
	}

	// Empty id slices are no-ops.
	if n, err := repo.DeleteRawRecords(ctx, nil); err != nil || n != 0 {
		t.Fatalf("empty delete = (%d, %v)", n, err)
	}
	if err := repo.MarkRawProcessed(ctx, nil); err != nil {
		t.Fatalf("empty mark: %v", err)
	}
}

func TestVersionsOverwritePolicy(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()
	table := storage.Interactions

	keys, err := repo.NaturalKeys(ctx, table)
	if err != nil {
		t.Fatalf("natural keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected empty table, got %d keys", len(keys))
	}

	counters := []any{int64(10), int64(100), int64(2), int64(5), int64(1)}
	if err := repo.InsertVersion(ctx, table, "v1", counters, 20230501); err != nil {
		t.Fatalf("insert version: %v", err)
	}

	v, err := repo.LatestVersion(ctx, table, "v1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if v == nil {
		t.Fatal("latest = nil for existing key")
	}
	if v.DateKey != 20230501 {
		t.Fatalf("date key = %d, want 20230501", v.DateKey)
	}
	if !storage.EqualValues(v.Values, counters) {
		t.Fatalf("tracked values = %v, want %v", v.Values, counters)
	}

	updated := []any{int64(15), int64(150), int64(2), int64(5), int64(1)}
	if err := repo.UpdateCurrent(ctx, table, "v1", updated, 20230502); err != nil {
		t.Fatalf("update current: %v", err)
	}
	v, err = repo.LatestVersion(ctx, table, "v1")
	if err != nil {
		t.Fatalf("latest after update: %v", err)
	}
	if v.DateKey != 20230502 || !storage.EqualValues(v.Values, updated) {
		t.Fatalf("after overwrite: %+v", v)
	}

	keys, err = repo.NaturalKeys(ctx, table)
	if err != nil {
		t.Fatalf("natural keys: %v", err)
	}
	if _, ok := keys["v1"]; !ok || len(keys) != 1 {
		t.Fatalf("keys = %v, want exactly v1", keys)
	}

	v, err = repo.LatestVersion(ctx, table, "missing")
	if err != nil {
		t.Fatalf("latest missing: %v", err)
	}
	if v != nil {
		t.Fatalf("latest for missing key = %+v, want nil", v)
	}
}

func TestVersionsAppendPolicy(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()
	table := storage.Authors

	day1 := []any{"alice", "http://cdn/a1.jpg"}
	if err := repo.InsertVersion(ctx, table, "a1", day1, 20230501); err != nil {
		t.Fatalf("insert day1: %v", err)
	}
	day2 := []any{"alice renamed", "http://cdn/a1.jpg"}
	if err := repo.InsertVersion(ctx, table, "a1", day2, 20230502); err != nil {
		t.Fatalf("insert day2: %v", err)
	}

	// Latest is ordered by the date column, not insertion order.
	v, err := repo.LatestVersion(ctx, table, "a1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if v.DateKey != 20230502 || !storage.EqualValues(v.Values, day2) {
		t.Fatalf("latest = %+v, want day2 values", v)
	}

	// Same-day rewrite replaces the day2 row in place.
	day2b := []any{"alice again", nil}
	if err := repo.UpdateVersionAt(ctx, table, "a1", day2b, 20230502); err != nil {
		t.Fatalf("update version at: %v", err)
	}
	v, err = repo.LatestVersion(ctx, table, "a1")
	if err != nil {
		t.Fatalf("latest after collapse: %v", err)
	}
	if v.DateKey != 20230502 || !storage.EqualValues(v.Values, day2b) {
		t.Fatalf("after collapse: %+v", v)
	}
	if v.Values[1] != nil {
		t.Fatalf("NULL tracked value = %v, want nil", v.Values[1])
	}

	// Two versions of the same key count once in the identity set.
	keys, err := repo.NaturalKeys(ctx, table)
	if err != nil {
		t.Fatalf("natural keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("keys = %v, want one distinct key", keys)
	}
}

func TestCalendarReplaceAndDateKeys(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	row := func(sk int64, date string) []any {
		r := make([]any, len(storage.CalendarColumns))
		r[0] = sk
		r[1] = date
		return r
	}

	if err := repo.ReplaceCalendar(ctx, [][]any{
		row(20230501, "2023-05-01"),
		row(20230502, "2023-05-02"),
	}); err != nil {
		t.Fatalf("replace calendar: %v", err)
	}

	// Replace is a full swap, not an append.
	if err := repo.ReplaceCalendar(ctx, [][]any{
		row(20230503, "2023-05-03"),
	}); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	keys, err := repo.DateKeys(ctx)
	if err != nil {
		t.Fatalf("date keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("date keys = %v, want single entry", keys)
	}
	if keys["2023-05-03"] != 20230503 {
		t.Fatalf("date key for 2023-05-03 = %d", keys["2023-05-03"])
	}
}

func TestCalendarReplaceChunking(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	var rows [][]any
	for i := 0; i < calendarChunkRows*2+7; i++ {
		r := make([]any, len(storage.CalendarColumns))
		r[0] = int64(20230000 + i)
		r[1] = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02")
		rows = append(rows, r)
	}

	if err := repo.ReplaceCalendar(ctx, rows); err != nil {
		t.Fatalf("replace calendar: %v", err)
	}
	keys, err := repo.DateKeys(ctx)
	if err != nil {
		t.Fatalf("date keys: %v", err)
	}
	if len(keys) != len(rows) {
		t.Fatalf("loaded %d rows, want %d", len(keys), len(rows))
	}
}

func TestAppendLoadLog(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	start := time.Date(2023, 5, 1, 9, 0, 0, 0, time.UTC)
	err := repo.AppendLoadLog(ctx, storage.LoadLogEntry{
		BatchID:     "LOAD_20230501_090000_abc",
		TableName:   storage.Authors.Name,
		RecordCount: 10,
		Inserted:    4,
		Updated:     3,
		Skipped:     2,
		Failed:      1,
		Status:      storage.LoadStatusPartial,
		StartedAt:   start,
		EndedAt:     start.Add(2 * time.Second),
		SourceFile:  "dump_a.json",
	})
	if err != nil {
		t.Fatalf("append load log: %v", err)
	}
}
