// Package loader orchestrates one pass over the incoming dump directory:
// validate and admit raw payloads, extract candidates, run the versioner
// against a per-batch identity cache, audit counts, and relocate files.
package loader

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stagingloader/internal/config"
	"stagingloader/internal/datedim"
	"stagingloader/internal/extract"
	"stagingloader/internal/ingest"
	"stagingloader/internal/metrics"
	pjson "stagingloader/internal/parser/json"
	"stagingloader/internal/staging"
	"stagingloader/internal/storage"
)

// Loader runs batches. Files within a batch and items within a file are
// processed sequentially; the identity cache's add-after-insert discipline
// depends on that.
type Loader struct {
	repo      storage.Repository
	gate      *ingest.Gate
	versioner *staging.Versioner
	auditor   *staging.Auditor
	met       metrics.Backend
	log       *logrus.Entry
	cfg       config.LoaderConfig

	now func() time.Time
}

// Summary aggregates one directory pass.
type Summary struct {
	BatchID     string
	FilesSeen   int
	FilesOK     int
	FilesFailed int
	Tables      map[string]staging.TableCounts
}

func New(repo storage.Repository, cfg config.LoaderConfig, met metrics.Backend, log *logrus.Entry) (*Loader, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if met == nil {
		met = metrics.Noop{}
	}
	gate, err := ingest.NewGate(repo, cfg.SchemaPath, log)
	if err != nil {
		return nil, err
	}
	return &Loader{
		repo:      repo,
		gate:      gate,
		versioner: staging.NewVersioner(repo, log),
		auditor:   staging.NewAuditor(repo, log),
		met:       met,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// NewBatchID builds a sortable batch identifier with a uuid fragment so two
// passes starting within the same second stay distinct.
func NewBatchID(t time.Time) string {
	frag := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("LOAD_%s_%s", t.UTC().Format("20060102_150405"), frag)
}

// ProcessDirectory runs one batch over every *.json file in the input
// directory, oldest name first.
//
// The batch's date key is resolved once, up front, from a fresh calendar
// snapshot: a date outside the calendar range must fail the run before any
// dimension write happens.
func (l *Loader) ProcessDirectory(ctx context.Context) (*Summary, error) {
	start := l.now()
	sum := &Summary{
		BatchID: NewBatchID(start),
		Tables:  map[string]staging.TableCounts{},
	}

	files, err := l.listInputFiles()
	if err != nil {
		return sum, err
	}
	sum.FilesSeen = len(files)
	if len(files) == 0 {
		l.log.WithField("dir", l.cfg.InputDir).Debug("no input files")
		return sum, nil
	}

	resolver, err := datedim.NewResolver(ctx, l.repo)
	if err != nil {
		return sum, err
	}
	dateKey, err := resolver.Resolve(start)
	if err != nil {
		return sum, fmt.Errorf("loader: %w", err)
	}

	cache, err := staging.LoadIdentityCache(ctx, l.repo)
	if err != nil {
		return sum, err
	}

	l.log.WithFields(logrus.Fields{
		"batch":    sum.BatchID,
		"files":    len(files),
		"date_key": dateKey,
	}).Info("batch started")

	for _, path := range files {
		fileStart := l.now()
		err := l.processFile(ctx, sum, cache, dateKey, path)
		elapsed := l.now().Sub(fileStart).Seconds()

		status := "processed"
		if err != nil {
			status = "failed"
			sum.FilesFailed++
			l.log.WithField("file", path).WithError(err).Error("file failed")
		} else {
			sum.FilesOK++
		}
		l.met.IncCounter(metrics.FilesTotal, 1, metrics.Labels{"status": status})
		l.met.ObserveHistogram(metrics.FileDurationSeconds, elapsed, metrics.Labels{"status": status})

		// Only a dead database connection aborts the pass.
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrBadConn)) {
			return sum, err
		}
	}

	l.met.IncCounter(metrics.BatchesTotal, 1, nil)
	l.log.WithFields(logrus.Fields{
		"batch":  sum.BatchID,
		"ok":     sum.FilesOK,
		"failed": sum.FilesFailed,
	}).Info("batch finished")
	return sum, nil
}

// processFile handles one dump file end to end. A returned error means the
// file was routed to the failed area; the batch continues.
func (l *Loader) processFile(
	ctx context.Context,
	sum *Summary,
	cache *staging.IdentityCache,
	dateKey int64,
	path string,
) error {
	name := filepath.Base(path)

	payload, err := os.ReadFile(path)
	if err != nil {
		l.failFile(ctx, path, fmt.Sprintf("read file: %v", err))
		return fmt.Errorf("read %s: %w", name, err)
	}

	if err := l.gate.Validate(name, payload); err != nil {
		l.failFile(ctx, path, err.Error())
		return err
	}

	items, err := pjson.DecodeItems(ctx, bytes.NewReader(payload))
	if err != nil {
		l.failFile(ctx, path, fmt.Sprintf("decode items: %v", err))
		return fmt.Errorf("decode %s: %w", name, err)
	}

	gateRes, err := l.gate.Admit(ctx, name, items)
	if err != nil {
		l.failFile(ctx, path, err.Error())
		return err
	}
	l.met.IncCounter(metrics.RawRowsTotal, boolCount(gateRes.RawID != 0), metrics.Labels{"op": "inserted"})
	l.met.IncCounter(metrics.RawRowsTotal, float64(gateRes.DeletedRows), metrics.Labels{"op": "deleted"})

	batch := extract.CollectBatch(items)
	fileStart := l.now()

	authorCounts := missCounts(batch.AuthorMisses)
	for _, a := range batch.Authors {
		action, _ := l.versioner.Upsert(ctx, storage.Authors, cache, a.ID, a.TrackedValues(), dateKey)
		authorCounts.Tally(action)
		l.countRecord(storage.Authors.Name, action)
	}

	videoCounts := missCounts(batch.VideoMisses)
	for _, v := range batch.Videos {
		action, _ := l.versioner.Upsert(ctx, storage.Videos, cache, v.ID, v.TrackedValues(), dateKey)
		videoCounts.Tally(action)
		l.countRecord(storage.Videos.Name, action)
	}

	interCounts := missCounts(batch.VideoMisses)
	for _, i := range batch.Interactions {
		action, _ := l.versioner.Upsert(ctx, storage.Interactions, cache, i.VideoID, i.TrackedValues(), dateKey)
		interCounts.Tally(action)
		l.countRecord(storage.Interactions.Name, action)
	}

	fileEnd := l.now()
	l.auditor.Record(ctx, sum.BatchID, storage.Authors.Name, authorCounts, fileStart, fileEnd, name, "")
	l.auditor.Record(ctx, sum.BatchID, storage.Videos.Name, videoCounts, fileStart, fileEnd, name, "")
	l.auditor.Record(ctx, sum.BatchID, storage.Interactions.Name, interCounts, fileStart, fileEnd, name, "")

	sum.Tables[storage.Authors.Name] = merge(sum.Tables[storage.Authors.Name], authorCounts)
	sum.Tables[storage.Videos.Name] = merge(sum.Tables[storage.Videos.Name], videoCounts)
	sum.Tables[storage.Interactions.Name] = merge(sum.Tables[storage.Interactions.Name], interCounts)

	// The raw row's content is absorbed; flip it to PROCESSED.
	if gateRes.RawID != 0 {
		if err := l.repo.MarkRawProcessed(ctx, []int64{gateRes.RawID}); err != nil {
			l.log.WithField("raw_id", gateRes.RawID).WithError(err).Warn("mark processed failed")
		}
	}

	if !l.cfg.KeepFiles {
		if err := moveFile(path, filepath.Join(l.cfg.ProcessedDir, name)); err != nil {
			l.log.WithField("file", path).WithError(err).Warn("relocate processed file failed")
		}
	}
	return nil
}

// failFile records the FAILED raw row (empty content) and routes the file to
// the failed area.
func (l *Loader) failFile(ctx context.Context, path, errMsg string) {
	name := filepath.Base(path)
	if err := l.gate.RecordFailure(ctx, name, errMsg); err != nil {
		l.log.WithField("file", name).WithError(err).Warn("record failure failed")
	}
	if !l.cfg.KeepFiles {
		if err := moveFile(path, filepath.Join(l.cfg.FailedDir, name)); err != nil {
			l.log.WithField("file", path).WithError(err).Warn("relocate failed file failed")
		}
	}
}

func (l *Loader) countRecord(table string, action staging.Action) {
	l.met.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{
		"table":  table,
		"action": string(action),
	})
}

func (l *Loader) listInputFiles() ([]string, error) {
	entries, err := os.ReadDir(l.cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("loader: read input dir %s: %w", l.cfg.InputDir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			files = append(files, filepath.Join(l.cfg.InputDir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// missCounts seeds a table's counts with items that yielded no candidate;
// they count as failed records for that table.
func missCounts(n int) staging.TableCounts {
	return staging.TableCounts{Records: n, Failed: n}
}

func merge(a, b staging.TableCounts) staging.TableCounts {
	a.Records += b.Records
	a.Inserted += b.Inserted
	a.Updated += b.Updated
	a.Skipped += b.Skipped
	a.Failed += b.Failed
	return a
}

func boolCount(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// moveFile renames, falling back to copy-and-remove for cross-device moves.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
