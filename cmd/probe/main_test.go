package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"text/tabwriter"

	"stagingloader/internal/storage"
	"stagingloader/internal/storage/storagetest"
)

func TestBuildReport(t *testing.T) {
	t.Parallel()

	repo := &storagetest.Fake{
		NaturalKeysFn: func(ctx context.Context, table storage.TableSpec) (map[string]struct{}, error) {
			if table.Name == storage.Videos.Name {
				return map[string]struct{}{"v1": {}, "v2": {}}, nil
			}
			return map[string]struct{}{}, nil
		},
		DateKeysFn: func(ctx context.Context) (map[string]int64, error) {
			return map[string]int64{"2023-05-01": 20230501}, nil
		},
		RetainedRawRecordsFn: func(ctx context.Context) ([]storage.RawRecord, error) {
			return []storage.RawRecord{{ID: 1}, {ID: 2}, {ID: 3}}, nil
		},
	}

	rep, err := buildReport(context.Background(), repo)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if rep.TableKeys[storage.Videos.Name] != 2 || rep.TableKeys[storage.Authors.Name] != 0 {
		t.Fatalf("table keys = %v", rep.TableKeys)
	}
	if rep.CalendarDates != 1 || rep.RawRows != 3 {
		t.Fatalf("report = %+v", rep)
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	rep.write(w)
	w.Flush()
	out := buf.String()
	if !strings.Contains(out, "videos") || !strings.Contains(out, "2 keys") {
		t.Fatalf("report output:\n%s", out)
	}
}

func TestBuildReportPropagatesError(t *testing.T) {
	t.Parallel()

	boom := errors.New("no such table")
	repo := &storagetest.Fake{
		NaturalKeysFn: func(ctx context.Context, table storage.TableSpec) (map[string]struct{}, error) {
			return nil, boom
		},
	}
	if _, err := buildReport(context.Background(), repo); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}
