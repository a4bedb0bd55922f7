// Package storagetest provides a configurable in-memory Repository fake for
// unit tests. Methods delegate to the corresponding function field when set
// and otherwise return zero values, so tests only wire what they assert on.
package storagetest

import (
	"context"

	"stagingloader/internal/storage"
)

type Fake struct {
	CloseFn              func()
	EnsureSchemaFn       func(ctx context.Context) error
	RetainedRawRecordsFn func(ctx context.Context) ([]storage.RawRecord, error)
	InsertRawRecordFn    func(ctx context.Context, rec storage.RawRecord) (int64, error)
	DeleteRawRecordsFn   func(ctx context.Context, ids []int64) (int64, error)
	MarkRawProcessedFn   func(ctx context.Context, ids []int64) error
	NaturalKeysFn        func(ctx context.Context, table storage.TableSpec) (map[string]struct{}, error)
	LatestVersionFn      func(ctx context.Context, table storage.TableSpec, key string) (*storage.Version, error)
	InsertVersionFn      func(ctx context.Context, table storage.TableSpec, key string, values []any, dateKey int64) error
	UpdateCurrentFn      func(ctx context.Context, table storage.TableSpec, key string, values []any, dateKey int64) error
	UpdateVersionAtFn    func(ctx context.Context, table storage.TableSpec, key string, values []any, dateKey int64) error
	DateKeysFn           func(ctx context.Context) (map[string]int64, error)
	ReplaceCalendarFn    func(ctx context.Context, rows [][]any) error
	AppendLoadLogFn      func(ctx context.Context, e storage.LoadLogEntry) error
}

var _ storage.Repository = (*Fake)(nil)

func (f *Fake) Close() {
	if f.CloseFn != nil {
		f.CloseFn()
	}
}

func (f *Fake) EnsureSchema(ctx context.Context) error {
	if f.EnsureSchemaFn != nil {
		return f.EnsureSchemaFn(ctx)
	}
	return nil
}

func (f *Fake) RetainedRawRecords(ctx context.Context) ([]storage.RawRecord, error) {
	if f.RetainedRawRecordsFn != nil {
		return f.RetainedRawRecordsFn(ctx)
	}
	return nil, nil
}

func (f *Fake) InsertRawRecord(ctx context.Context, rec storage.RawRecord) (int64, error) {
	if f.InsertRawRecordFn != nil {
		return f.InsertRawRecordFn(ctx, rec)
	}
	return 0, nil
}

func (f *Fake) DeleteRawRecords(ctx context.Context, ids []int64) (int64, error) {
	if f.DeleteRawRecordsFn != nil {
		return f.DeleteRawRecordsFn(ctx, ids)
	}
	return 0, nil
}

func (f *Fake) MarkRawProcessed(ctx context.Context, ids []int64) error {
	if f.MarkRawProcessedFn != nil {
		return f.MarkRawProcessedFn(ctx, ids)
	}
	return nil
}

func (f *Fake) NaturalKeys(ctx context.Context, table storage.TableSpec) (map[string]struct{}, error) {
	if f.NaturalKeysFn != nil {
		return f.NaturalKeysFn(ctx, table)
	}
	return map[string]struct{}{}, nil
}

func (f *Fake) LatestVersion(ctx context.Context, table storage.TableSpec, key string) (*storage.Version, error) {
	if f.LatestVersionFn != nil {
		return f.LatestVersionFn(ctx, table, key)
	}
	return nil, nil
}

func (f *Fake) InsertVersion(ctx context.Context, table storage.TableSpec, key string, values []any, dateKey int64) error {
	if f.InsertVersionFn != nil {
		return f.InsertVersionFn(ctx, table, key, values, dateKey)
	}
	return nil
}

func (f *Fake) UpdateCurrent(ctx context.Context, table storage.TableSpec, key string, values []any, dateKey int64) error {
	if f.UpdateCurrentFn != nil {
		return f.UpdateCurrentFn(ctx, table, key, values, dateKey)
	}
	return nil
}

func (f *Fake) UpdateVersionAt(ctx context.Context, table storage.TableSpec, key string, values []any, dateKey int64) error {
	if f.UpdateVersionAtFn != nil {
		return f.UpdateVersionAtFn(ctx, table, key, values, dateKey)
	}
	return nil
}

func (f *Fake) DateKeys(ctx context.Context) (map[string]int64, error) {
	if f.DateKeysFn != nil {
		return f.DateKeysFn(ctx)
	}
	return map[string]int64{}, nil
}

func (f *Fake) ReplaceCalendar(ctx context.Context, rows [][]any) error {
	if f.ReplaceCalendarFn != nil {
		return f.ReplaceCalendarFn(ctx, rows)
	}
	return nil
}

func (f *Fake) AppendLoadLog(ctx context.Context, e storage.LoadLogEntry) error {
	if f.AppendLoadLogFn != nil {
		return f.AppendLoadLogFn(ctx, e)
	}
	return nil
}
