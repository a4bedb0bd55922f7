package datedim

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stagingloader/internal/parser/csv"
	"stagingloader/internal/storage"
)

// maxReportedErrors caps how many row errors Stats retains; the counts still
// cover every row.
const maxReportedErrors = 20

// Stats summarizes one calendar load.
type Stats struct {
	TotalRows   int
	LoadedRows  int
	SkippedRows int
	Errors      []string
	Started     time.Time
	Ended       time.Time
}

func (s *Stats) addError(msg string) {
	if len(s.Errors) < maxReportedErrors {
		s.Errors = append(s.Errors, msg)
	}
}

// Loader bulk-loads the calendar reference table from a headerless CSV with
// at least 18 columns per row (extra columns are ignored).
//
// Row validation: date_sk must be numeric and full_date must look like
// YYYY-MM-DD. Invalid rows are skipped and reported, never abort the load.
// The table is truncated and replaced in one transaction, so a failed load
// leaves the previous calendar intact.
type Loader struct {
	repo storage.Repository
	log  *logrus.Entry
	// Encoding names the CSV byte encoding; empty means UTF-8.
	Encoding string
}

func NewLoader(repo storage.Repository, log *logrus.Entry) *Loader {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Loader{repo: repo, log: log}
}

// LoadFile reads the calendar CSV at path and replaces the table contents.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("datedim: open %s: %w", path, err)
	}
	defer f.Close()
	return l.Load(ctx, f)
}

// Load reads calendar rows from r and replaces the table contents.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*Stats, error) {
	stats := &Stats{Started: time.Now()}
	defer func() { stats.Ended = time.Now() }()

	var rows [][]any

	opt := csv.Options{
		TrimSpace: true,
		Encoding:  l.Encoding,
		MinFields: len(storage.CalendarColumns),
	}
	err := csv.StreamRows(ctx, r, storage.CalendarColumns, opt,
		func(line int, values []string) error {
			stats.TotalRows++

			row, err := validateRow(values)
			if err != nil {
				stats.SkippedRows++
				stats.addError(fmt.Sprintf("line %d: %v", line, err))
				return nil
			}
			rows = append(rows, row)
			return nil
		},
		func(line int, err error) {
			stats.TotalRows++
			stats.SkippedRows++
			stats.addError(fmt.Sprintf("line %d: %v", line, err))
		},
	)
	if err != nil {
		return stats, err
	}

	if len(rows) == 0 {
		return stats, fmt.Errorf("datedim: no valid calendar rows")
	}

	if err := l.repo.ReplaceCalendar(ctx, rows); err != nil {
		return stats, fmt.Errorf("datedim: replace calendar: %w", err)
	}
	stats.LoadedRows = len(rows)

	l.log.WithFields(logrus.Fields{
		"loaded":  stats.LoadedRows,
		"skipped": stats.SkippedRows,
	}).Info("calendar table replaced")
	return stats, nil
}

// validateRow converts one 18-slot string row into typed column values.
// Integer columns tolerate empty strings as NULL.
func validateRow(values []string) ([]any, error) {
	sk, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid date_sk %q (must be numeric)", values[0])
	}

	fullDate := values[1]
	if len(fullDate) != 10 || strings.Count(fullDate, "-") != 2 {
		return nil, fmt.Errorf("invalid full_date %q (expected YYYY-MM-DD)", fullDate)
	}

	row := make([]any, len(storage.CalendarColumns))
	row[0] = sk
	row[1] = fullDate
	for i := 2; i < len(storage.CalendarColumns); i++ {
		if calendarIntColumn[storage.CalendarColumns[i]] {
			if values[i] == "" {
				row[i] = nil
				continue
			}
			n, err := strconv.ParseInt(values[i], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q", storage.CalendarColumns[i], values[i])
			}
			row[i] = n
			continue
		}
		row[i] = values[i]
	}
	return row, nil
}

var calendarIntColumn = map[string]bool{
	"day_since_2005":      true,
	"month_since_2005":    true,
	"day_of_month":        true,
	"day_of_year":         true,
	"week_of_year_sunday": true,
	"week_of_year_monday": true,
}
