// Package staging is the versioning core: an identity cache snapshotting
// existing natural keys once per batch, the dimension versioner deciding
// insert/update/skip per candidate, and the load auditor.
package staging

import (
	"context"
	"fmt"

	"stagingloader/internal/storage"
)

// IdentityCache holds the natural keys already present in each staging
// table, snapshotted once at batch start. Exactly one existence query per
// table runs, regardless of batch size; per-record lookups hit the in-memory
// sets only.
//
// Keys inserted during the batch are added immediately so within-batch
// duplicates resolve without re-querying. Cross-batch staleness is fine
// because every batch re-snapshots. The add-after-insert discipline stands
// in for locking and relies on single-threaded batch execution.
type IdentityCache struct {
	sets map[string]map[string]struct{}
}

// LoadIdentityCache snapshots the key sets for every staging table.
func LoadIdentityCache(ctx context.Context, repo storage.Repository) (*IdentityCache, error) {
	c := &IdentityCache{sets: make(map[string]map[string]struct{}, len(storage.StagingTables))}
	for _, t := range storage.StagingTables {
		keys, err := repo.NaturalKeys(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("staging: snapshot keys for %s: %w", t.Name, err)
		}
		c.sets[t.Name] = keys
	}
	return c, nil
}

// Has reports whether key exists in table's snapshot.
func (c *IdentityCache) Has(table storage.TableSpec, key string) bool {
	_, ok := c.sets[table.Name][key]
	return ok
}

// Add records a freshly inserted key.
func (c *IdentityCache) Add(table storage.TableSpec, key string) {
	set, ok := c.sets[table.Name]
	if !ok {
		set = map[string]struct{}{}
		c.sets[table.Name] = set
	}
	set[key] = struct{}{}
}

// Size returns the snapshot size for one table, for logging.
func (c *IdentityCache) Size(table storage.TableSpec) int {
	return len(c.sets[table.Name])
}
