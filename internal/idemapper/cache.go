package idemapper

import (
	"time"

	"github.com/ctxloom/ctxloom/internal/cache"
)

// defaultMappingTableTTL matches spec.md §5's "in-memory caches for ...
// IDE mappings — TTL'd, best-effort-consistent": mapping documents are a
// version-controlled asset that changes rarely, so a short TTL trades a
// little staleness for avoiding a disk read on every mapped tool call.
const defaultMappingTableTTL = 5 * time.Minute

// TableCache wraps LoadMappingTable with a TTL'd in-memory cache keyed
// by IDE, so a busy executor doesn't re-read and re-parse the same
// mapping document on every request.
type TableCache struct {
	dataRoot string
	store    *cache.Store[MappingTable]
}

// NewTableCache builds a TableCache rooted at dataRoot.
func NewTableCache(dataRoot string) *TableCache {
	return &TableCache{
		dataRoot: dataRoot,
		store:    cache.NewStore[MappingTable](cache.Options[MappingTable]{TTL: defaultMappingTableTTL}),
	}
}

// Get returns the mapping table for ide, loading and caching it on a
// miss. A load error is never cached, so a transient disk failure is
// retried on the next call rather than sticking for the TTL window.
func (c *TableCache) Get(ide IDE) (MappingTable, error) {
	if table, ok := c.store.Get(string(ide)); ok {
		return table, nil
	}
	table, err := LoadMappingTable(c.dataRoot, ide)
	if err != nil {
		return MappingTable{}, err
	}
	c.store.Set(string(ide), table)
	return table, nil
}

// Invalidate evicts a cached mapping table, forcing the next Get to
// reload it from disk. Callers reload a mapping document out-of-band
// (e.g. an admin edits the YAML asset) and use this to avoid waiting
// out the TTL.
func (c *TableCache) Invalidate(ide IDE) {
	c.store.Delete(string(ide))
}
