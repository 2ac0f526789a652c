package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/shpitdev/location-campaign/internal/lead"
)

// snapshot is the durable document layout.
type snapshot struct {
	Locations       map[string][]lead.Location `json:"locations"`
	Hits            map[string]int             `json:"hits"`
	ProcessedEmails []string                   `json:"processedEmails"`
}

// Stat is the hit count recorded for one company.
type Stat struct {
	Company string
	Hits    int
}

// LocationCache maps company names to looked-up locations and tracks which
// contacts have already been emailed. State lives in memory and is written
// through a Store as a complete snapshot on Save.
//
// LocationCache is not safe for concurrent use.
type LocationCache struct {
	store  Store
	logger *log.Logger

	locations map[string][]lead.Location
	hits      map[string]int
	processed map[string]struct{}
}

func New(store Store, logger *log.Logger) *LocationCache {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	c := &LocationCache{store: store, logger: logger}
	c.reset()
	return c
}

func (c *LocationCache) reset() {
	c.locations = make(map[string][]lead.Location)
	c.hits = make(map[string]int)
	c.processed = make(map[string]struct{})
}

// Load replaces in-memory state with the stored snapshot. A missing or
// unreadable snapshot leaves the cache empty; Load never fails.
func (c *LocationCache) Load() {
	c.reset()
	b, err := c.store.Read()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.logger.Printf("cache: no snapshot found, starting with empty cache")
		} else {
			c.logger.Printf("cache: read snapshot failed, starting with empty cache: %v", err)
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		c.logger.Printf("cache: parse snapshot failed, starting with empty cache: %v", err)
		return
	}
	for company, locs := range snap.Locations {
		if locs == nil {
			locs = []lead.Location{}
		}
		c.locations[company] = locs
		c.hits[company] = 0
	}
	for company, n := range snap.Hits {
		if _, ok := c.locations[company]; !ok {
			continue
		}
		if n < 0 {
			n = 0
		}
		c.hits[company] = n
	}
	for _, email := range snap.ProcessedEmails {
		if key := lead.EmailKey(email); key != "" {
			c.processed[key] = struct{}{}
		}
	}
	c.logger.Printf("cache: loaded %d companies and %d processed emails", len(c.locations), len(c.processed))
}

// Save writes the full current state, replacing the previous snapshot.
func (c *LocationCache) Save() error {
	snap := snapshot{
		Locations:       c.locations,
		Hits:            c.hits,
		ProcessedEmails: make([]string, 0, len(c.processed)),
	}
	for email := range c.processed {
		snap.ProcessedEmails = append(snap.ProcessedEmails, email)
	}
	sort.Strings(snap.ProcessedEmails)

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache snapshot: %w", err)
	}
	if err := c.store.Write(b); err != nil {
		return fmt.Errorf("write cache snapshot: %w", err)
	}
	return nil
}

// Set stores locations for company and resets its hit counter.
func (c *LocationCache) Set(company string, locations []lead.Location) {
	stored := make([]lead.Location, len(locations))
	copy(stored, locations)
	c.locations[company] = stored
	c.hits[company] = 0
}

// Get returns the cached locations for company and counts a hit when found.
func (c *LocationCache) Get(company string) ([]lead.Location, bool) {
	locs, ok := c.locations[company]
	if !ok {
		return nil, false
	}
	c.hits[company]++
	out := make([]lead.Location, len(locs))
	copy(out, locs)
	return out, true
}

// Has reports whether company is cached. It does not count as a hit.
func (c *LocationCache) Has(company string) bool {
	_, ok := c.locations[company]
	return ok
}

func (c *LocationCache) MarkEmailProcessed(email string) {
	if key := lead.EmailKey(email); key != "" {
		c.processed[key] = struct{}{}
	}
}

func (c *LocationCache) IsEmailProcessed(email string) bool {
	_, ok := c.processed[lead.EmailKey(email)]
	return ok
}

// Stats returns per-company hit counts sorted by company.
func (c *LocationCache) Stats() []Stat {
	out := make([]Stat, 0, len(c.hits))
	for company, n := range c.hits {
		out = append(out, Stat{Company: company, Hits: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Company < out[j].Company })
	return out
}

func (c *LocationCache) ProcessedEmailCount() int {
	return len(c.processed)
}

// Clear empties the cache and removes the stored snapshot.
func (c *LocationCache) Clear() error {
	c.reset()
	if err := c.store.Remove(); err != nil {
		return fmt.Errorf("remove cache snapshot: %w", err)
	}
	c.logger.Printf("cache: cleared")
	return nil
}
