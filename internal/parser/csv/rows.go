// Package csv streams delimited reference files, mapping source headers onto
// a target column order. The calendar loader is its only consumer today, but
// nothing here is calendar-specific.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

type Options struct {
	// Comma is the field separator; ',' when zero.
	Comma rune
	// HasHeader maps source columns by header name; otherwise by position.
	HasHeader bool
	// TrimSpace trims edge whitespace from every field.
	TrimSpace bool
	// Encoding names the source byte encoding ("", "utf-8", "latin1",
	// "windows-1250", "windows-1252"). Exports from office tooling are
	// frequently not UTF-8.
	Encoding string
	// MinFields routes records with fewer source fields to onErr instead
	// of padding them with "". Zero disables the check.
	MinFields int
}

func decoderFor(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "windows-1250", "cp1250":
		return charmap.Windows1250.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("csv: unsupported encoding %q", name)
	}
}

// StreamRows reads delimited rows from r and calls emit with each record's
// values aligned to the target column order. Missing source columns yield ""
// in their slots. emit's line number is 1-based and counts source lines
// including the header.
//
// A row-level read error (bad quoting, wrong field count) is reported through
// onErr and the row is skipped; the stream continues.
func StreamRows(
	ctx context.Context,
	r io.Reader,
	columns []string,
	opt Options,
	emit func(line int, values []string) error,
	onErr func(line int, err error),
) error {
	dec, err := decoderFor(opt.Encoding)
	if err != nil {
		return err
	}
	if dec != nil {
		r = transform.NewReader(r, dec)
	}

	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	colIx := make([]int, len(columns))
	for i := range colIx {
		colIx[i] = -1
	}

	line := 0
	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	if opt.HasHeader {
		hdr, err := readRec()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("csv: read header: %w", err)
		}
		srcToIdx := make(map[string]int, len(hdr))
		for i, h := range hdr {
			h = strings.TrimSpace(h)
			if i == 0 {
				h = strings.TrimPrefix(h, "\ufeff")
			}
			h = strings.ReplaceAll(strings.ToLower(h), " ", "_")
			srcToIdx[h] = i
		}
		for t, target := range columns {
			if si, ok := srcToIdx[target]; ok {
				colIx[t] = si
			}
		}
	} else {
		for i := range columns {
			colIx[i] = i
		}
	}

	values := make([]string, len(columns))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}
		if opt.MinFields > 0 && len(rec) < opt.MinFields {
			if onErr != nil {
				onErr(line, fmt.Errorf("expected at least %d columns, got %d", opt.MinFields, len(rec)))
			}
			continue
		}

		for t := range columns {
			si := colIx[t]
			if si < 0 || si >= len(rec) {
				values[t] = ""
				continue
			}
			v := rec[si]
			if opt.TrimSpace {
				v = strings.TrimSpace(v)
			}
			values[t] = v
		}

		if err := emit(line, values); err != nil {
			return err
		}
	}
}
