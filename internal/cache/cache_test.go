package cache_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shpitdev/location-campaign/internal/cache"
	"github.com/shpitdev/location-campaign/internal/lead"
)

var acmeLocations = []lead.Location{
	{Name: "Acme Downtown", Rating: 3.5, Address: "1 Main St", TotalRatings: 210},
	{Name: "Acme Harbor", Rating: 3.8, Address: "9 Harbor Way", TotalRatings: 150},
}

func newFileCache(t *testing.T) (*cache.LocationCache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "location-cache.json")
	return cache.New(cache.NewFileStore(path), nil), path
}

func TestHitAccounting(t *testing.T) {
	c, _ := newFileCache(t)
	c.Set("Acme", acmeLocations)

	for i := 0; i < 5; i++ {
		if !c.Has("Acme") {
			t.Fatalf("expected Has to report Acme")
		}
	}
	for i := 0; i < 3; i++ {
		got, ok := c.Get("Acme")
		if !ok {
			t.Fatalf("expected hit")
		}
		if diff := cmp.Diff(acmeLocations, got); diff != "" {
			t.Fatalf("locations mismatch (-want +got):\n%s", diff)
		}
	}
	if _, ok := c.Get("Globex"); ok {
		t.Fatalf("expected miss for unknown company")
	}

	want := []cache.Stat{{Company: "Acme", Hits: 3}}
	if diff := cmp.Diff(want, c.Stats()); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}

	c.Set("Acme", acmeLocations[:1])
	if diff := cmp.Diff([]cache.Stat{{Company: "Acme", Hits: 0}}, c.Stats()); diff != "" {
		t.Fatalf("Set should reset hits (-want +got):\n%s", diff)
	}
}

func TestEmptyResultIsCached(t *testing.T) {
	c, _ := newFileCache(t)
	c.Set("Nowhere Inc", nil)
	if !c.Has("Nowhere Inc") {
		t.Fatalf("expected empty result to be cached")
	}
	got, ok := c.Get("Nowhere Inc")
	if !ok || len(got) != 0 {
		t.Fatalf("expected present empty result, got %v ok=%v", got, ok)
	}
}

func TestProcessedEmails(t *testing.T) {
	c, _ := newFileCache(t)
	c.MarkEmailProcessed("Ada@Example.com")
	c.MarkEmailProcessed("ada@example.com ")
	if !c.IsEmailProcessed("ada@example.com") {
		t.Fatalf("expected processed")
	}
	if c.IsEmailProcessed("bob@example.com") {
		t.Fatalf("unexpected processed")
	}
	if n := c.ProcessedEmailCount(); n != 1 {
		t.Fatalf("expected 1 processed email, got %d", n)
	}
}

func TestSetDoesNotTouchProcessed(t *testing.T) {
	c, _ := newFileCache(t)
	c.MarkEmailProcessed("ada@example.com")
	c.Set("Acme", acmeLocations)
	if c.ProcessedEmailCount() != 1 {
		t.Fatalf("Set changed processed set")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c, path := newFileCache(t)
	c.Set("Acme", acmeLocations)
	c.Set("Nowhere Inc", nil)
	c.Get("Acme")
	c.Get("Acme")
	c.MarkEmailProcessed("ada@example.com")
	if err := c.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("snapshot is not json: %v", err)
	}
	for _, section := range []string{"locations", "hits", "processedEmails"} {
		if _, ok := raw[section]; !ok {
			t.Fatalf("snapshot missing section %q: %s", section, b)
		}
	}

	restored := cache.New(cache.NewFileStore(path), nil)
	restored.Load()
	got, ok := restored.Get("Acme")
	if !ok {
		t.Fatalf("expected Acme after load")
	}
	if diff := cmp.Diff(acmeLocations, got); diff != "" {
		t.Fatalf("locations mismatch (-want +got):\n%s", diff)
	}
	if !restored.Has("Nowhere Inc") {
		t.Fatalf("expected empty result to survive round trip")
	}
	if !restored.IsEmailProcessed("ada@example.com") {
		t.Fatalf("expected processed email to survive round trip")
	}
	want := []cache.Stat{{Company: "Acme", Hits: 3}, {Company: "Nowhere Inc", Hits: 0}}
	if diff := cmp.Diff(want, restored.Stats()); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFailsSoft(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		c, _ := newFileCache(t)
		c.Load()
		if len(c.Stats()) != 0 || c.ProcessedEmailCount() != 0 {
			t.Fatalf("expected empty cache")
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		c, path := newFileCache(t)
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		c.Set("Acme", acmeLocations)
		c.Load()
		if c.Has("Acme") || len(c.Stats()) != 0 {
			t.Fatalf("expected corrupt snapshot to leave cache empty")
		}
	})
}

func TestClear(t *testing.T) {
	c, path := newFileCache(t)
	c.Set("Acme", acmeLocations)
	c.MarkEmailProcessed("ada@example.com")
	if err := c.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if c.Has("Acme") {
		t.Fatalf("Has after clear")
	}
	if _, ok := c.Get("Acme"); ok {
		t.Fatalf("Get after clear")
	}
	if c.IsEmailProcessed("ada@example.com") {
		t.Fatalf("IsEmailProcessed after clear")
	}
	if len(c.Stats()) != 0 {
		t.Fatalf("stats after clear: %v", c.Stats())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected snapshot removed, stat err=%v", err)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("clear with missing snapshot: %v", err)
	}
}

type failingStore struct {
	cache.Store
	err error
}

func (s failingStore) Write([]byte) error { return s.err }

func TestSavePropagatesWriteError(t *testing.T) {
	boom := errors.New("disk full")
	c := cache.New(failingStore{Store: cache.NewFileStore(filepath.Join(t.TempDir(), "c.json")), err: boom}, nil)
	c.Set("Acme", acmeLocations)
	if err := c.Save(); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cache.db")
	store, err := cache.OpenBoltStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	if _, err := store.Read(); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	c := cache.New(store, nil)
	c.Set("Acme", acmeLocations)
	c.MarkEmailProcessed("ada@example.com")
	if err := c.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := cache.New(store, nil)
	restored.Load()
	if !restored.Has("Acme") || !restored.IsEmailProcessed("ada@example.com") {
		t.Fatalf("bolt round trip lost state")
	}

	if err := restored.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.Read(); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
	if err := store.Remove(); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
}
