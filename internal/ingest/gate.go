// Package ingest validates incoming dump files and maintains the raw payload
// audit table: only content for previously unseen natural keys is persisted,
// and raw rows fully superseded by fresher observations are removed so the
// table stays bounded under continuous re-ingestion of overlapping crawls.
package ingest

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/sirupsen/logrus"

	"stagingloader/internal/extract"
	pjson "stagingloader/internal/parser/json"
	"stagingloader/internal/storage"
)

//go:embed schema.json
var defaultSchema []byte

// SchemaError marks a file whose shape failed validation. The caller routes
// the file to the failed area and records a FAILED raw row with empty content.
type SchemaError struct {
	Filename string
	Err      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema validation failed for %s: %v", e.Filename, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Gate validates and deduplicates raw payloads before anything downstream
// runs. Dedup only governs what the raw audit table retains; every item in
// the file still flows to staging regardless of NEW/SEEN.
type Gate struct {
	repo   storage.Repository
	schema *jsonschema.Schema
	log    *logrus.Entry
}

// Result reports one file's pass through the gate.
type Result struct {
	// NewItems are items whose content id was absent from the raw store
	// (plus items with no id at all are counted in Skipped, not here).
	NewItems int
	// SeenItems had a content id already covered by a retained raw row.
	SeenItems int
	// Skipped items carried no content id and cannot be deduplicated.
	Skipped int
	// DeletedRows is the number of superseded raw rows removed.
	DeletedRows int
	// RawID is the id of the inserted raw row, 0 when nothing was inserted.
	RawID int64
}

// NewGate compiles the content schema. schemaPath overrides the embedded
// default when non-empty.
func NewGate(repo storage.Repository, schemaPath string, log *logrus.Entry) (*Gate, error) {
	raw := defaultSchema
	if schemaPath != "" {
		b, err := os.ReadFile(schemaPath)
		if err != nil {
			return nil, fmt.Errorf("ingest: read schema %s: %w", schemaPath, err)
		}
		raw = b
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("ingest: parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("content-schema.json", doc); err != nil {
		return nil, fmt.Errorf("ingest: add schema resource: %w", err)
	}
	sch, err := c.Compile("content-schema.json")
	if err != nil {
		return nil, fmt.Errorf("ingest: compile schema: %w", err)
	}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Gate{repo: repo, schema: sch, log: log}, nil
}

// Validate checks one file's raw bytes against the content schema. Returns
// *SchemaError on shape mismatch.
func (g *Gate) Validate(filename string, payload []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return &SchemaError{Filename: filename, Err: err}
	}
	if err := g.schema.Validate(inst); err != nil {
		return &SchemaError{Filename: filename, Err: err}
	}
	return nil
}

// Admit persists the deduplicated raw payload for one validated file.
//
// Steps, in order:
//  1. Load natural keys covered by retained raw rows, remembering which
//     rows cover which keys.
//  2. Partition items into NEW and SEEN by content id.
//  3. Insert one raw row holding only the NEW items. Empty NEW subset
//     means no insert, still success.
//  4. Delete retained rows whose keys are all within the SEEN set.
//
// Insert happens before delete: a crash between the two leaves a harmless
// duplicate, never a gap.
func (g *Gate) Admit(ctx context.Context, filename string, items []map[string]any) (Result, error) {
	var res Result

	retained, err := g.repo.RetainedRawRecords(ctx)
	if err != nil {
		return res, fmt.Errorf("ingest: load retained raw rows: %w", err)
	}

	existing := map[string]struct{}{}
	coverage := make(map[int64][]string, len(retained))
	for _, rec := range retained {
		keys := contentIDs(ctx, rec.Payload)
		coverage[rec.ID] = keys
		for _, k := range keys {
			existing[k] = struct{}{}
		}
	}

	var newItems []map[string]any
	seen := map[string]struct{}{}
	for _, item := range items {
		id := extract.ContentID(item)
		if id == "" {
			res.Skipped++
			continue
		}
		if _, ok := existing[id]; ok {
			seen[id] = struct{}{}
			res.SeenItems++
			continue
		}
		newItems = append(newItems, item)
		res.NewItems++
	}

	if len(newItems) > 0 {
		payload, err := json.Marshal(newItems)
		if err != nil {
			return res, fmt.Errorf("ingest: marshal new items: %w", err)
		}
		id, err := g.repo.InsertRawRecord(ctx, storage.RawRecord{
			Filename: filename,
			Payload:  payload,
			Status:   storage.RawStatusSuccess,
			LoadedAt: time.Now(),
		})
		if err != nil {
			return res, fmt.Errorf("ingest: insert raw row: %w", err)
		}
		res.RawID = id
	}

	// A row is superseded only when every key it covers was re-observed in
	// this file. Partial overlap keeps the row; deleting it would drop raw
	// coverage for its other keys.
	var superseded []int64
	for rawID, keys := range coverage {
		if len(keys) == 0 {
			continue
		}
		all := true
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				all = false
				break
			}
		}
		if all {
			superseded = append(superseded, rawID)
		}
	}

	if len(superseded) > 0 {
		n, err := g.repo.DeleteRawRecords(ctx, superseded)
		if err != nil {
			return res, fmt.Errorf("ingest: delete superseded raw rows: %w", err)
		}
		res.DeletedRows = int(n)
	}

	g.log.WithFields(logrus.Fields{
		"file":    filename,
		"new":     res.NewItems,
		"seen":    res.SeenItems,
		"skipped": res.Skipped,
		"deleted": res.DeletedRows,
	}).Info("raw ingest admitted")

	return res, nil
}

// RecordFailure stores a FAILED raw row with empty content for a file that
// did not pass validation or parsing.
func (g *Gate) RecordFailure(ctx context.Context, filename, errMsg string) error {
	_, err := g.repo.InsertRawRecord(ctx, storage.RawRecord{
		Filename: filename,
		Status:   storage.RawStatusFailed,
		LoadedAt: time.Now(),
		Error:    errMsg,
	})
	if err != nil {
		return fmt.Errorf("ingest: record failed file %s: %w", filename, err)
	}
	return nil
}

// contentIDs parses a stored payload and lists the content ids it covers.
// Unparseable payloads cover nothing and are left alone.
func contentIDs(ctx context.Context, payload []byte) []string {
	items, err := pjson.DecodeItems(ctx, bytes.NewReader(payload))
	if err != nil {
		return nil
	}
	var out []string
	for _, it := range items {
		if id := extract.ContentID(it); id != "" {
			out = append(out, id)
		}
	}
	return out
}
