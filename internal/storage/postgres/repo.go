package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stagingloader/internal/storage"
)

// Repo implements storage.Repository on PostgreSQL via a pgx pool.
//
// Unlike the SQLite backend, timestamps live in native TIMESTAMPTZ columns;
// scan results are normalized back to RFC3339 strings so the versioner
// compares values the same way on every backend.
type Repo struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

func init() {
	storage.Register("postgres", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repo{pool: pool, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}, nil
}

func (r *Repo) Close() { r.pool.Close() }

func sqlType(generic string) string {
	switch generic {
	case "bigint":
		return "BIGINT"
	case "timestamp":
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  raw_json_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
  filename TEXT NOT NULL,
  content TEXT NOT NULL DEFAULT '',
  load_status TEXT NOT NULL,
  loaded_at TIMESTAMPTZ NOT NULL,
  error_message TEXT
);`, storage.RawTableName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  date_sk BIGINT PRIMARY KEY,
  full_date TEXT NOT NULL UNIQUE,
  day_since_2005 BIGINT,
  month_since_2005 BIGINT,
  day_of_week TEXT,
  calendar_month TEXT,
  calendar_year TEXT,
  calendar_year_month TEXT,
  day_of_month BIGINT,
  day_of_year BIGINT,
  week_of_year_sunday BIGINT,
  year_week_sunday TEXT,
  week_sunday_start TEXT,
  week_of_year_monday BIGINT,
  year_week_monday TEXT,
  week_monday_start TEXT,
  holiday TEXT,
  day_type TEXT
);`, storage.DateDimTableName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  load_log_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
  batch_id TEXT NOT NULL,
  table_name TEXT NOT NULL,
  record_count BIGINT NOT NULL,
  inserted_count BIGINT NOT NULL,
  updated_count BIGINT NOT NULL,
  skipped_count BIGINT NOT NULL,
  failed_count BIGINT NOT NULL,
  status TEXT NOT NULL,
  start_time TIMESTAMPTZ NOT NULL,
  end_time TIMESTAMPTZ NOT NULL,
  source_filename TEXT,
  error_message TEXT
);`, storage.LoadLogTableName),
	}
	for _, t := range storage.StagingTables {
		stmts = append(stmts, buildStagingDDL(t))
	}

	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

func buildStagingDDL(t storage.TableSpec) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%s %s NOT NULL", pgIdent(t.KeyColumn.Name), sqlType(t.KeyColumn.Type)))
	for _, c := range t.Tracked {
		parts = append(parts, fmt.Sprintf("%s %s", pgIdent(c.Name), sqlType(c.Type)))
	}
	parts = append(parts, fmt.Sprintf("%s BIGINT NOT NULL", pgIdent(t.DateColumn)))

	switch t.Policy {
	case storage.PolicyOverwrite:
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", pgIdent(t.KeyColumn.Name)))
	default:
		parts = append(parts, fmt.Sprintf("UNIQUE (%s, %s)", pgIdent(t.KeyColumn.Name), pgIdent(t.DateColumn)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", t.Name, strings.Join(parts, ",\n  "))
}

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

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.RawRecord
	for rows.Next() {
		var rec storage.RawRecord
		var content string
		var loadedAt time.Time
		if err := rows.Scan(&rec.ID, &rec.Filename, &content, &rec.Status, &loadedAt, &rec.Error); err != nil {
			return nil, err
		}
		rec.Payload = []byte(content)
		rec.LoadedAt = loadedAt.UTC()
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
		Values(rec.Filename, string(rec.Payload), rec.Status, loadedAt.UTC(), nullStr(rec.Error)).
		Suffix("RETURNING raw_json_id").
		ToSql()
	if err != nil {
		return 0, err
	}

	var id int64
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
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
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
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
	_, err = r.pool.Exec(ctx, q, args...)
	return err
}

func (r *Repo) NaturalKeys(ctx context.Context, table storage.TableSpec) (map[string]struct{}, error) {
	q, args, err := r.sb.
		Select("DISTINCT " + pgIdent(table.KeyColumn.Name)).
		From(table.Name).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, q, args...)
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
		cols = append(cols, pgIdent(c.Name))
	}
	cols = append(cols, pgIdent(table.DateColumn))

	q, args, err := r.sb.
		Select(cols...).
		From(table.Name).
		Where(sq.Eq{table.KeyColumn.Name: key}).
		OrderBy(pgIdent(table.DateColumn) + " DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	// Scan destinations must be pointers; *any lets pgx fill driver-native
	// values which NormalizeValue then flattens.
	vals := make([]any, len(table.Tracked))
	scan := make([]any, 0, len(vals)+1)
	for i := range vals {
		scan = append(scan, &vals[i])
	}
	var dateKey int64
	scan = append(scan, &dateKey)

	if err := r.pool.QueryRow(ctx, q, args...).Scan(scan...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	_, err = r.pool.Exec(ctx, q, args...)
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
	_, err = r.pool.Exec(ctx, q, args...)
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
	_, err = r.pool.Exec(ctx, q, args...)
	return err
}

func (r *Repo) DateKeys(ctx context.Context) (map[string]int64, error) {
	q, args, err := r.sb.Select("full_date", "date_sk").From(storage.DateDimTableName).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, q, args...)
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

const calendarChunkRows = 500

func (r *Repo) ReplaceCalendar(ctx context.Context, rows [][]any) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DELETE FROM "+storage.DateDimTableName); err != nil {
		return fmt.Errorf("postgres: clear %s: %w", storage.DateDimTableName, err)
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
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("postgres: load %s: %w", storage.DateDimTableName, err)
		}
	}

	return tx.Commit(ctx)
}

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
			e.Status, e.StartedAt.UTC(), e.EndedAt.UTC(), e.SourceFile, nullStr(e.Error),
		).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, q, args...)
	return err
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
