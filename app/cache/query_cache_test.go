package cache

import (
	"path/filepath"
	"testing"

	"github.com/robrotell/vril/app/database"
)

func newTestCache(t *testing.T) (*QueryCache, database.MetaRepository) {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	metaRepo := database.NewMetaRepository(db)
	return NewQueryCache(metaRepo), metaRepo
}

func TestQueryCache_HitWhileWatermarkUnchanged(t *testing.T) {
	cache, _ := newTestCache(t)

	key := Key("movies", map[string]string{"page": "1", "count": "20"})
	cache.Put(key, "result")

	value, ok := cache.Get(key)
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if value != "result" {
		t.Errorf("Unexpected cached value: %v", value)
	}
}

func TestQueryCache_MissAfterWatermarkBump(t *testing.T) {
	cache, metaRepo := newTestCache(t)

	key := Key("movies", map[string]string{"page": "1"})
	cache.Put(key, "stale")

	if _, err := metaRepo.BumpWatermark(); err != nil {
		t.Fatalf("Failed to bump watermark: %v", err)
	}

	if _, ok := cache.Get(key); ok {
		t.Error("Expected cache miss after watermark bump")
	}
}

func TestQueryCache_MissForUnknownKey(t *testing.T) {
	cache, _ := newTestCache(t)

	if _, ok := cache.Get(Key("movies", nil)); ok {
		t.Error("Expected cache miss for unknown key")
	}
}

func TestKey_ParameterOrderDoesNotMatter(t *testing.T) {
	a := Key("movies", map[string]string{"page": "1", "keyword": "alien"})
	b := Key("movies", map[string]string{"keyword": "alien", "page": "1"})

	if a != b {
		t.Errorf("Expected identical keys, got %q and %q", a, b)
	}

	c := Key("movies", map[string]string{"page": "2", "keyword": "alien"})
	if a == c {
		t.Error("Expected different parameters to yield different keys")
	}

	d := Key("articles", map[string]string{"page": "1", "keyword": "alien"})
	if a == d {
		t.Error("Expected different query names to yield different keys")
	}
}

func TestKey_SeparatorsInValuesDoNotCollide(t *testing.T) {
	a := Key("movies", map[string]string{"a": "b&c=d"})
	b := Key("movies", map[string]string{"a": "b", "c": "d"})

	if a == b {
		t.Error("Expected value containing separators to yield its own key")
	}

	c := Key("movies", map[string]string{"a=b": "c"})
	d := Key("movies", map[string]string{"a": "b=c"})
	if c == d {
		t.Error("Expected separator in key name to yield its own key")
	}
}

func TestQueryCache_SweepDropsStaleEntries(t *testing.T) {
	cache, metaRepo := newTestCache(t)

	cache.Put(Key("movies", map[string]string{"page": "1"}), "a")
	cache.Put(Key("movies", map[string]string{"page": "2"}), "b")

	if cache.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", cache.Len())
	}

	if _, err := metaRepo.BumpWatermark(); err != nil {
		t.Fatalf("Failed to bump watermark: %v", err)
	}

	// The next write sweeps everything stamped with the old watermark.
	cache.Put(Key("movies", map[string]string{"page": "3"}), "c")

	if cache.Len() != 1 {
		t.Errorf("Expected stale entries to be swept, got %d", cache.Len())
	}
}
