package staging

import (
	"context"

	"github.com/sirupsen/logrus"

	"stagingloader/internal/storage"
)

// Action is the outcome of one upsert decision.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionSkip   Action = "SKIP"
	ActionError  Action = "ERROR"
)

// Versioner applies the per-table versioning discipline to one candidate at
// a time.
//
// Decision table, in order:
//  1. Key absent from the cache: insert a row dated with the batch's date
//     key, add the key to the cache.
//  2. Key present and every tracked attribute matches the latest stored
//     snapshot: skip, no write.
//  3. Key present with at least one differing attribute: update, under the
//     table's policy.
//     Overwrite mutates the single row and advances its date key;
//     append inserts a new row dated today unless the latest row already
//     carries today's date key, in which case that row is corrected in
//     place (same-day collapse, never two rows for one day).
//
// Any persistence failure is contained to the record: the action reported
// is ERROR and the caller moves on. Writes are single statements, so the
// database rolls back just that record's change.
type Versioner struct {
	repo storage.Repository
	log  *logrus.Entry
}

func NewVersioner(repo storage.Repository, log *logrus.Entry) *Versioner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Versioner{repo: repo, log: log}
}

// Upsert decides and executes the action for one candidate. values must be
// aligned with table.Tracked. The returned error accompanies ActionError
// only; every other action returns nil.
func (v *Versioner) Upsert(
	ctx context.Context,
	table storage.TableSpec,
	cache *IdentityCache,
	key string,
	values []any,
	dateKey int64,
) (Action, error) {
	norm := make([]any, len(values))
	for i, val := range values {
		norm[i] = storage.NormalizeValue(val)
	}

	if !cache.Has(table, key) {
		if err := v.repo.InsertVersion(ctx, table, key, norm, dateKey); err != nil {
			v.warn(table, key, "insert", err)
			return ActionError, err
		}
		cache.Add(table, key)
		return ActionInsert, nil
	}

	latest, err := v.repo.LatestVersion(ctx, table, key)
	if err != nil {
		v.warn(table, key, "read latest", err)
		return ActionError, err
	}
	if latest == nil {
		// Cache said present but no row exists; self-heal by inserting.
		if err := v.repo.InsertVersion(ctx, table, key, norm, dateKey); err != nil {
			v.warn(table, key, "insert", err)
			return ActionError, err
		}
		return ActionInsert, nil
	}

	if storage.EqualValues(latest.Values, norm) {
		return ActionSkip, nil
	}

	switch table.Policy {
	case storage.PolicyOverwrite:
		if err := v.repo.UpdateCurrent(ctx, table, key, norm, dateKey); err != nil {
			v.warn(table, key, "overwrite", err)
			return ActionError, err
		}
		return ActionUpdate, nil

	default: // append-new-version
		if latest.DateKey == dateKey {
			if err := v.repo.UpdateVersionAt(ctx, table, key, norm, dateKey); err != nil {
				v.warn(table, key, "same-day correct", err)
				return ActionError, err
			}
			return ActionUpdate, nil
		}
		if err := v.repo.InsertVersion(ctx, table, key, norm, dateKey); err != nil {
			v.warn(table, key, "append version", err)
			return ActionError, err
		}
		return ActionUpdate, nil
	}
}

func (v *Versioner) warn(table storage.TableSpec, key, op string, err error) {
	v.log.WithFields(logrus.Fields{
		"table": table.Name,
		"key":   key,
		"op":    op,
	}).WithError(err).Warn("record write failed")
}
