package csv

import (
	"context"
	"strings"
	"testing"
)

type row struct {
	line   int
	values []string
}

func collect(t *testing.T, src string, columns []string, opt Options) ([]row, []int) {
	t.Helper()

	var rows []row
	var errLines []int
	err := StreamRows(context.Background(), strings.NewReader(src), columns, opt,
		func(line int, values []string) error {
			rows = append(rows, row{line: line, values: append([]string(nil), values...)})
			return nil
		},
		func(line int, err error) {
			errLines = append(errLines, line)
		})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	return rows, errLines
}

func TestStreamRowsHeaderMapping(t *testing.T) {
	t.Parallel()

	// Source column order differs from the target order; "City" tests
	// the lowercase + space-to-underscore normalization.
	src := "Name,City Code,ignored\nalice,NYC,x\nbob,SF,y\n"
	rows, errLines := collect(t, src, []string{"city_code", "name"}, Options{HasHeader: true})

	if len(errLines) != 0 {
		t.Fatalf("unexpected row errors at lines %v", errLines)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].line != 2 {
		t.Fatalf("first data line = %d, want 2 (header counts)", rows[0].line)
	}
	if got := rows[0].values; got[0] != "NYC" || got[1] != "alice" {
		t.Fatalf("row 1 = %v", got)
	}
}

func TestStreamRowsHeaderBOM(t *testing.T) {
	t.Parallel()

	src := "\ufeffname,city\nalice,NYC\n"
	rows, _ := collect(t, src, []string{"name"}, Options{HasHeader: true})
	if len(rows) != 1 || rows[0].values[0] != "alice" {
		t.Fatalf("rows = %v, BOM not stripped from first header", rows)
	}
}

func TestStreamRowsMissingSourceColumn(t *testing.T) {
	t.Parallel()

	src := "name\nalice\n"
	rows, _ := collect(t, src, []string{"name", "city"}, Options{HasHeader: true})
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].values[1] != "" {
		t.Fatalf("missing column slot = %q, want empty", rows[0].values[1])
	}
}

func TestStreamRowsPositionalMinFields(t *testing.T) {
	t.Parallel()

	src := "a,b,c\nshort\nd,e,f\n"
	rows, errLines := collect(t, src, []string{"x", "y", "z"}, Options{MinFields: 3})

	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if len(errLines) != 1 || errLines[0] != 2 {
		t.Fatalf("error lines = %v, want [2]", errLines)
	}
	if rows[1].values[2] != "f" {
		t.Fatalf("row after skip = %v", rows[1].values)
	}
}

func TestStreamRowsTrimSpace(t *testing.T) {
	t.Parallel()

	src := " alice , NYC \n"
	rows, _ := collect(t, src, []string{"name", "city"}, Options{TrimSpace: true})
	if rows[0].values[0] != "alice" || rows[0].values[1] != "NYC" {
		t.Fatalf("trimmed row = %v", rows[0].values)
	}
}

func TestStreamRowsSemicolonDelimiter(t *testing.T) {
	t.Parallel()

	src := "alice;NYC\n"
	rows, _ := collect(t, src, []string{"name", "city"}, Options{Comma: ';'})
	if rows[0].values[0] != "alice" || rows[0].values[1] != "NYC" {
		t.Fatalf("row = %v", rows[0].values)
	}
}

func TestStreamRowsLatin1(t *testing.T) {
	t.Parallel()

	// 0xE9 is é in ISO-8859-1.
	src := string([]byte{'c', 'a', 'f', 0xE9, ',', 'x', '\n'})
	rows, _ := collect(t, src, []string{"word", "other"}, Options{Encoding: "latin1"})
	if rows[0].values[0] != "café" {
		t.Fatalf("decoded = %q, want café", rows[0].values[0])
	}
}

func TestStreamRowsUnsupportedEncoding(t *testing.T) {
	t.Parallel()

	err := StreamRows(context.Background(), strings.NewReader("a\n"), []string{"a"},
		Options{Encoding: "ebcdic"},
		func(int, []string) error { return nil }, nil)
	if err == nil {
		t.Fatal("expected error for unsupported encoding")
	}
}
