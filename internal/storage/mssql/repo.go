package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/microsoft/go-mssqldb"

	"stagingloader/internal/storage"
)

// Repo implements storage.Repository on SQL Server.
//
// SQL Server quirks handled here:
//   - No CREATE TABLE IF NOT EXISTS; DDL is wrapped in OBJECT_ID guards.
//   - Columns in a UNIQUE constraint cannot be NVARCHAR(MAX); natural keys
//     and full_date use NVARCHAR(450) (the max indexable width).
//   - No LIMIT; latest-version lookup uses OFFSET/FETCH.
//   - LastInsertId is not supported; inserts that need the new id use
//     OUTPUT INSERTED.
type Repo struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func init() {
	storage.Register("mssql", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Repo{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.AtP)}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func sqlType(generic string, indexed bool) string {
	switch generic {
	case "bigint":
		return "BIGINT"
	case "timestamp":
		return "DATETIMEOFFSET"
	default:
		if indexed {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}

// guardCreate wraps CREATE TABLE in an OBJECT_ID check so EnsureSchema stays
// idempotent without IF NOT EXISTS syntax.
func guardCreate(table, body string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (\n  %s\n); END;",
		table, mssqlIdent(table), body,
	)
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		guardCreate(storage.RawTableName, strings.Join([]string{
			"raw_json_id BIGINT IDENTITY(1,1) PRIMARY KEY",
			"filename NVARCHAR(MAX) NOT NULL",
			"content NVARCHAR(MAX) NOT NULL DEFAULT ''",
			"load_status NVARCHAR(50) NOT NULL",
			"loaded_at DATETIMEOFFSET NOT NULL",
			"error_message NVARCHAR(MAX)",
		}, ",\n  ")),
		guardCreate(storage.DateDimTableName, strings.Join([]string{
			"date_sk BIGINT PRIMARY KEY",
			"full_date NVARCHAR(450) NOT NULL UNIQUE",
			"day_since_2005 BIGINT",
			"month_since_2005 BIGINT",
			"day_of_week NVARCHAR(MAX)",
			"calendar_month NVARCHAR(MAX)",
			"calendar_year NVARCHAR(MAX)",
			"calendar_year_month NVARCHAR(MAX)",
			"day_of_month BIGINT",
			"day_of_year BIGINT",
			"week_of_year_sunday BIGINT",
			"year_week_sunday NVARCHAR(MAX)",
			"week_sunday_start NVARCHAR(MAX)",
			"week_of_year_monday BIGINT",
			"year_week_monday NVARCHAR(MAX)",
			"week_monday_start NVARCHAR(MAX)",
			"holiday NVARCHAR(MAX)",
			"day_type NVARCHAR(MAX)",
		}, ",\n  ")),
		guardCreate(storage.LoadLogTableName, strings.Join([]string{
			"load_log_id BIGINT IDENTITY(1,1) PRIMARY KEY",
			"batch_id NVARCHAR(450) NOT NULL",
			"table_name NVARCHAR(450) NOT NULL",
			"record_count BIGINT NOT NULL",
			"inserted_count BIGINT NOT NULL",
			"updated_count BIGINT NOT NULL",
			"skipped_count BIGINT NOT NULL",
			"failed_count BIGINT NOT NULL",
			"status NVARCHAR(50) NOT NULL",
			"start_time DATETIMEOFFSET NOT NULL",
			"end_time DATETIMEOFFSET NOT NULL",
			"source_filename NVARCHAR(MAX)",
			"error_message NVARCHAR(MAX)",
		}, ",\n  ")),
	}
	for _, t := range storage.StagingTables {
		stmts = append(stmts, buildStagingDDL(t))
	}

	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("mssql: ensure schema: %w", err)
		}
	}
	return nil
}

func buildStagingDDL(t storage.TableSpec) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%s %s NOT NULL", mssqlIdent(t.KeyColumn.Name), sqlType(t.KeyColumn.Type, true)))
	for _, c := range t.Tracked {
		parts = append(parts, fmt.Sprintf("%s %s", mssqlIdent(c.Name), sqlType(c.Type, false)))
	}
	parts = append(parts, fmt.Sprintf("%s BIGINT NOT NULL", mssqlIdent(t.DateColumn)))

	switch t.Policy {
	case storage.PolicyOverwrite:
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", mssqlIdent(t.KeyColumn.Name)))
	default:
		parts = append(parts, fmt.Sprintf("UNIQUE (%s, %s)", mssqlIdent(t.KeyColumn.Name), mssqlIdent(t.DateColumn)))
	}

	return guardCreate(t.Name, strings.Join(parts, ",\n  "))
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

	rows, err := r.db.QueryContext(ctx, q, args...)
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
		ToSql()
	if err != nil {
		return 0, err
	}
	// OUTPUT must sit between the column list and VALUES.
	q = strings.Replace(q, ") VALUES (", ") OUTPUT INSERTED.raw_json_id VALUES (", 1)

	var id int64
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
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

func (r *Repo) NaturalKeys(ctx context.Context, table storage.TableSpec) (map[string]struct{}, error) {
	q, args, err := r.sb.
		Select("DISTINCT " + mssqlIdent(table.KeyColumn.Name)).
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
		cols = append(cols, mssqlIdent(c.Name))
	}
	cols = append(cols, mssqlIdent(table.DateColumn))

	q, args, err := r.sb.
		Select(cols...).
		From(table.Name).
		Where(sq.Eq{table.KeyColumn.Name: key}).
		OrderBy(mssqlIdent(table.DateColumn) + " DESC").
		Suffix("OFFSET 0 ROWS FETCH NEXT 1 ROWS ONLY").
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

// SQL Server caps statements at 2100 parameters; 100 rows x 18 columns
// stays well under.
const calendarChunkRows = 100

func (r *Repo) ReplaceCalendar(ctx context.Context, rows [][]any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+mssqlIdent(storage.DateDimTableName)); err != nil {
		return fmt.Errorf("mssql: clear %s: %w", storage.DateDimTableName, err)
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
			return fmt.Errorf("mssql: load %s: %w", storage.DateDimTableName, err)
		}
	}

	return tx.Commit()
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
	_, err = r.db.ExecContext(ctx, q, args...)
	return err
}

func mssqlIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
