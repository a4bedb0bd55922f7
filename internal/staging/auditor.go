package staging

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"stagingloader/internal/storage"
)

// TableCounts accumulates per-table outcomes for one batch.
type TableCounts struct {
	Records  int
	Inserted int
	Updated  int
	Skipped  int
	Failed   int
}

// Tally folds one action into the counts.
func (c *TableCounts) Tally(a Action) {
	c.Records++
	switch a {
	case ActionInsert:
		c.Inserted++
	case ActionUpdate:
		c.Updated++
	case ActionSkip:
		c.Skipped++
	case ActionError:
		c.Failed++
	}
}

// Status derives the batch status for this table: SUCCESS with no failures,
// FAILED when nothing got through, PARTIAL otherwise.
func (c TableCounts) Status() string {
	switch {
	case c.Failed == 0:
		return storage.LoadStatusSuccess
	case c.Records > 0 && c.Failed == c.Records:
		return storage.LoadStatusFailed
	default:
		return storage.LoadStatusPartial
	}
}

// Auditor appends per-batch, per-table rows to the load log.
//
// Audit is observability, not pipeline state: a failure to write the log row
// is logged and swallowed, never propagated.
type Auditor struct {
	repo storage.Repository
	log  *logrus.Entry
}

func NewAuditor(repo storage.Repository, log *logrus.Entry) *Auditor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Auditor{repo: repo, log: log}
}

// Record appends one load-log row. Never returns an error.
func (a *Auditor) Record(
	ctx context.Context,
	batchID, tableName string,
	counts TableCounts,
	start, end time.Time,
	sourceFile string,
	errMsg string,
) {
	entry := storage.LoadLogEntry{
		BatchID:     batchID,
		TableName:   tableName,
		RecordCount: counts.Records,
		Inserted:    counts.Inserted,
		Updated:     counts.Updated,
		Skipped:     counts.Skipped,
		Failed:      counts.Failed,
		Status:      counts.Status(),
		StartedAt:   start,
		EndedAt:     end,
		SourceFile:  sourceFile,
		Error:       errMsg,
	}
	if err := a.repo.AppendLoadLog(ctx, entry); err != nil {
		a.log.WithFields(logrus.Fields{
			"batch": batchID,
			"table": tableName,
		}).WithError(err).Warn("load log append failed")
	}
}
