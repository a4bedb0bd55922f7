package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"stagingloader/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no native timestamp type. Timestamps (create_time, loaded_at,
//     load-log windows) are stored as RFC3339 strings for reliable round-trip
//     behavior and easy debugging.
//   - Dimension writes are single statements, which SQLite executes atomically;
//     that satisfies the per-record transaction contract without explicit BEGIN.
type Repo struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// The loader is single-threaded per batch; one connection avoids
	// "database is locked" surprises with in-memory DSNs.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func sqlType(generic string) string {
	switch generic {
	case "bigint":
		return "INTEGER"
	case "timestamp":
		return "TEXT"
	default:
		return "TEXT"
	}
}

// EnsureSchema creates all six structures if missing. Mirrors the other
// backends so loader startup is idempotent everywhere.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  raw_json_id INTEGER PRIMARY KEY AUTOINCREMENT,
  filename TEXT NOT NULL,
  content TEXT NOT NULL DEFAULT '',
  load_status TEXT NOT NULL,
  loaded_at TEXT NOT NULL,
  error_message TEXT
);`, storage.RawTableName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  date_sk INTEGER PRIMARY KEY,
  full_date TEXT NOT NULL UNIQUE,
  day_since_2005 INTEGER,
  month_since_2005 INTEGER,
  day_of_week TEXT,
  calendar_month TEXT,
  calendar_year TEXT,
  calendar_year_month TEXT,
  day_of_month INTEGER,
  day_of_year INTEGER,
  week_of_year_sunday INTEGER,
  year_week_sunday TEXT,
  week_sunday_start TEXT,
  week_of_year_monday INTEGER,
  year_week_monday TEXT,
  week_monday_start TEXT,
  holiday TEXT,
  day_type TEXT
);`, storage.DateDimTableName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  load_log_id INTEGER PRIMARY KEY AUTOINCREMENT,
  batch_id TEXT NOT NULL,
  table_name TEXT NOT NULL,
  record_count INTEGER NOT NULL,
  inserted_count INTEGER NOT NULL,
  updated_count INTEGER NOT NULL,
  skipped_count INTEGER NOT NULL,
  failed_count INTEGER NOT NULL,
  status TEXT NOT NULL,
  start_time TEXT NOT NULL,
  end_time TEXT NOT NULL,
  source_filename TEXT,
  error_message TEXT
);`, storage.LoadLogTableName),
	}
	for _, t := range storage.StagingTables {
		stmts = append(stmts, buildStagingDDL(t))
	}

	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("sqlite: ensure schema: %w", err)
		}
	}
	return nil
}

// buildStagingDDL generates DDL for one versioned staging table.
//
// The uniqueness constraint encodes the policy:
//   - overwrite: UNIQUE(key), exactly one row per natural key
//   - append:    UNIQUE(key, date_sk), at most one row per key per day
func buildStagingDDL(t storage.TableSpec) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%s %s NOT NULL", sqlIdent(t.KeyColumn.Name), sqlType(t.KeyColumn.Type)))
	for _, c := range t.Tracked {
		parts = append(parts, fmt.Sprintf("%s %s", sqlIdent(c.Name), sqlType(c.Type)))
	}
	parts = append(parts, fmt.Sprintf("%s INTEGER NOT NULL", sqlIdent(t.DateColumn)))

	switch t.Policy {
	case storage.PolicyOverwrite:
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", sqlIdent(t.KeyColumn.Name)))
	default:
		parts = append(parts, fmt.Sprintf("UNIQUE (%s, %s)", sqlIdent(t.KeyColumn.Name), sqlIdent(t.DateColumn)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", t.Name, strings.Join(parts, ",\n  "))
}

// ---- raw payload audit ----

func (r *Repo) RetainedRawRecords(ctx context.Context) ([]storage.RawRecord, error) {
	q, args, err := r.sb.
		Select("raw_json_id", "filename", "content", "load_status", "loaded_at", "COALESCE(error_message, '')").
		From(storage.RawTableName).
		Where(sq.And{
			sq.Or{
				sq.Eq{"load_status": storage.RawStatusSuccess},
				sq.Eq{"load_status": storage.RawStatusProcessed},
			},
			sq.NotEq{"content": ""},
		}).
		OrderBy("raw_json_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.RawRecord
	for rows.Next() {
		var rec storage.RawRecord
		var content, loadedAt string
		if err := rows.Scan(&rec.ID, &rec.Filename, &content, &rec.Status, &loadedAt, &rec.Error); err != nil {
			return nil, err
		}
		rec.Payload = []byte(content)
		rec.LoadedAt = parseTime(loadedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repo) InsertRawRecord(ctx context.Context, rec storage.RawRecord) (int64, error) {
	loadedAt := rec.LoadedAt
	if loadedAt.IsZero() {
		loadedAt = time.Now()
	}

	q, args, err := r.sb.
		Insert(storage.RawTableName).
		Columns("filename", "content", "load_status", "loaded_at", "error_message").
		Values(rec.Filename, string(rec.Payload), rec.Status, formatTime(loadedAt), nullStr(rec.Error)).
		ToSql()
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) DeleteRawRecords(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := r.sb.
		Delete(storage.RawTableName).
		Where(sq.Eq{"raw_json_id": ids}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *Repo) MarkRawProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := r.sb.
		Update(storage.RawTableName).
		Set("load_status", storage.RawStatusProcessed).
		Where(sq.Eq{"raw_json_id": ids}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	return err
}

// ---- versioned staging tables ----

func (r *Repo) NaturalKeys(ctx context.Context, table storage.TableSpec) (map[string]struct{}, error) {
	q, args, err := r.sb.
		Select("DISTINCT " + sqlIdent(table.KeyColumn.Name)).
		From(table.Name).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var k any
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		if nk := storage.NormalizeKey(k); nk != "" {
			out[nk] = struct{}{}
		}
	}
	return out, rows.Err()
}

func (r *Repo) LatestVersion(ctx context.Context, table storage.TableSpec, key string) (*storage.Version, error) {
	cols := make([]string, 0, len(table.Tracked)+1)
	for _, c := range table.Tracked {
		cols = append(cols, sqlIdent(c.Name))
	}
	cols = append(cols, sqlIdent(table.DateColumn))

	q, args, err := r.sb.
		Select(cols...).
		From(table.Name).
		Where(sq.Eq{table.KeyColumn.Name: key}).
		OrderBy(sqlIdent(table.DateColumn) + " DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	vals := make([]any, len(table.Tracked))
	scan := make([]any, 0, len(vals)+1)
	for i := range vals {
		scan = append(scan, &vals[i])
	}
	var dateKey int64
	scan = append(scan, &dateKey)

	if err := r.db.QueryRowContext(ctx, q, args...).Scan(scan...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	for i := range vals {
		vals[i] = storage.NormalizeValue(vals[i])
	}
	return &storage.Version{Values: vals, DateKey: dateKey}, nil
}

func (r *Repo) InsertVersion(ctx context.Context, table storage.TableSpec, key string, values []any, dateKey int64) error {
	cols := make([]string, 0, len(table.Tracked)+2)
	cols = append(cols, table.KeyColumn.Name)
	cols = append(cols, table.TrackedNames()...)
	cols = append(cols, table.DateColumn)

	binds := make([]any, 0, len(cols))
	binds = append(binds, key)
	binds = append(binds, values...)
	binds = append(binds, dateKey)

	q, args, err := r.sb.Insert(table.Name).Columns(cols...).Values(binds...).ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	return err
}

func (r *Repo) UpdateCurrent(ctx context.Context, table storage.TableSpec, key string, values []any, dateKey int64) error {
	b := r.sb.Update(table.Name)
	for i, c := range table.Tracked {
		b = b.Set(c.Name, values[i])
	}
	b = b.Set(table.DateColumn, dateKey).Where(sq.Eq{table.KeyColumn.Name: key})

	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	return err
}

func (r *Repo) UpdateVersionAt(ctx context.Context, table storage.TableSpec, key string, values []any, dateKey int64) error {
	b := r.sb.Update(table.Name)
	for i, c := range table.Tracked {
		b = b.Set(c.Name, values[i])
	}
	b = b.Where(sq.Eq{table.KeyColumn.Name: key, table.DateColumn: dateKey})

	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	return err
}

// ---- calendar reference ----

func (r *Repo) DateKeys(ctx context.Context) (map[string]int64, error) {
	q, args, err := r.sb.Select("full_date", "date_sk").From(storage.DateDimTableName).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var d string
		var sk int64
		if err := rows.Scan(&d, &sk); err != nil {
			return nil, err
		}
		out[d] = sk
	}
	return out, rows.Err()
}

// calendarChunkRows keeps multi-row inserts under driver bind limits
// (18 columns per row).
const calendarChunkRows = 100

func (r *Repo) ReplaceCalendar(ctx context.Context, rows [][]any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+storage.DateDimTableName); err != nil {
		return fmt.Errorf("sqlite: clear %s: %w", storage.DateDimTableName, err)
	}

	for start := 0; start < len(rows); start += calendarChunkRows {
		end := start + calendarChunkRows
		if end > len(rows) {
			end = len(rows)
		}

		b := r.sb.Insert(storage.DateDimTableName).Columns(storage.CalendarColumns...)
		for _, row := range rows[start:end] {
			b = b.Values(row...)
		}
		q, args, err := b.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("sqlite: load %s: %w", storage.DateDimTableName, err)
		}
	}

	return tx.Commit()
}

// ---- load audit ----

func (r *Repo) AppendLoadLog(ctx context.Context, e storage.LoadLogEntry) error {
	q, args, err := r.sb.
		Insert(storage.LoadLogTableName).
		Columns(
			"batch_id", "table_name", "record_count",
			"inserted_count", "updated_count", "skipped_count", "failed_count",
			"status", "start_time", "end_time", "source_filename", "error_message",
		).
		Values(
			e.BatchID, e.TableName, e.RecordCount,
			e.Inserted, e.Updated, e.Skipped, e.Failed,
			e.Status, formatTime(e.StartedAt), formatTime(e.EndedAt), e.SourceFile, nullStr(e.Error),
		).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	return err
}

// ---- helpers ----

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// formatTime stores timestamps as RFC3339 in UTC.
// We store timestamps as TEXT for reliable scanning/parsing with modernc.org/sqlite.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
