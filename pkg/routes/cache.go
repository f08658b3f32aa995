package routes

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"sort"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/backoffice/pkg/catalog"
	"github.com/platinummonkey/backoffice/pkg/permissions"
)

// CacheStats are cumulative cache counters
type CacheStats struct {
	Hits   int64
	Misses int64
	Builds int64
	Size   int
}

// Cache memoizes generated tables by permission tree fingerprint. Users with
// identical trees share one table.
type Cache struct {
	catalog  *catalog.Catalog
	registry Registry
	tables   *lru.LRU[string, *Table]
	group    singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	builds atomic.Int64
}

// NewCache creates a table cache holding up to size tables for ttl each
func NewCache(cat *catalog.Catalog, reg Registry, size int, ttl time.Duration) *Cache {
	if size < 1 {
		size = 1
	}
	return &Cache{
		catalog:  cat,
		registry: reg,
		tables:   lru.NewLRU[string, *Table](size, nil, ttl),
	}
}

// Get returns the table for perms, generating it on a miss. Concurrent
// misses for the same fingerprint generate once.
func (c *Cache) Get(perms permissions.Tree) *Table {
	key := Fingerprint(perms)
	if table, ok := c.tables.Get(key); ok {
		c.hits.Add(1)
		return table
	}
	c.misses.Add(1)

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		if table, ok := c.tables.Get(key); ok {
			return table, nil
		}
		table := Generate(c.catalog, perms, c.registry)
		c.builds.Add(1)
		c.tables.Add(key, table)
		return table, nil
	})
	return v.(*Table)
}

// Purge drops every cached table
func (c *Cache) Purge() {
	c.tables.Purge()
}

// Stats returns the cache counters
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Builds: c.builds.Load(),
		Size:   c.tables.Len(),
	}
}

// Fingerprint hashes the shape and flags of a permission tree. Equal trees
// have equal fingerprints regardless of map order.
func Fingerprint(perms permissions.Tree) string {
	h := sha256.New()
	writeLevel(h, perms)
	return hex.EncodeToString(h.Sum(nil))
}

func writeLevel(h hash.Hash, level permissions.Tree) {
	keys := make([]string, 0, len(level))
	for k := range level {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h.Write([]byte{'{'})
	for _, k := range keys {
		node := level[k]
		h.Write([]byte(k))
		h.Write([]byte{0})
		if node == nil {
			h.Write([]byte{'-'})
			continue
		}
		h.Write([]byte{flag(node.Access), flag(node.Edit)})
		writeLevel(h, node.Children)
	}
	h.Write([]byte{'}'})
}

func flag(b bool) byte {
	if b {
		return '1'
	}
	return '0'
}
