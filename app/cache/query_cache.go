package cache

import (
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robrotell/vril/app/database"
)

// DefaultTTL caps how long a cached result may live even when nothing
// writes to the store.
const DefaultTTL = 7 * 24 * time.Hour

type entry struct {
	value     any
	watermark int64
	expires   time.Time
}

// QueryCache memoizes list-query results. Every entry records the
// global watermark at write time; any later write bumps the watermark
// and silently invalidates the whole cache without touching it.
type QueryCache struct {
	metaRepo database.MetaRepository
	ttl      time.Duration

	mu      sync.RWMutex
	entries map[string]entry
}

func NewQueryCache(metaRepo database.MetaRepository) *QueryCache {
	return &QueryCache{
		metaRepo: metaRepo,
		ttl:      DefaultTTL,
		entries:  make(map[string]entry),
	}
}

// Key derives a cache key from a query name and its normalized
// parameters. Parameter order does not matter. Keys and values are
// escaped so a value containing "=" or "&" cannot collide with a
// different parameter set.
func Key(name string, params map[string]string) string {
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}
	sort.Strings(pairs)

	sum := md5.Sum([]byte(strings.Join(pairs, "&")))

	return name + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached value for key, or nil and false when the entry
// is missing, expired, or stale relative to the current watermark.
func (c *QueryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Now().After(e.expires) {
		return nil, false
	}

	watermark, err := c.metaRepo.Watermark()
	if err != nil {
		slog.Error("Failed to read watermark, bypassing cache", "error", err)
		return nil, false
	}

	if e.watermark != watermark {
		return nil, false
	}

	return e.value, true
}

// Put stores a value under key, stamped with the current watermark.
func (c *QueryCache) Put(key string, value any) {
	watermark, err := c.metaRepo.Watermark()
	if err != nil {
		slog.Error("Failed to read watermark, skipping cache write", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		value:     value,
		watermark: watermark,
		expires:   time.Now().Add(c.ttl),
	}

	c.sweepLocked(watermark)
}

// sweepLocked drops entries that can never hit again. Called with the
// write lock held.
func (c *QueryCache) sweepLocked(watermark int64) {
	now := time.Now()
	for key, e := range c.entries {
		if e.watermark != watermark || now.After(e.expires) {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of live entries. Used in tests.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
