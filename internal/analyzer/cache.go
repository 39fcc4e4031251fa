// Package analyzer implements Kai's ProjectAnalyzer and the AnalysisCache
// data model: per-file classification and summarization, refreshed
// atomically (temp file + rename), following the corpus's own atomic
// snapshot-persistence idiom.
package analyzer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntryType classifies a file for analysis purposes.
type EntryType string

const (
	TypeBinary      EntryType = "binary"
	TypeTextLarge   EntryType = "text_large"
	TypeTextAnalyze EntryType = "text_analyze"
)

// CacheEntry is one file's analysis record. EntryID correlates an entry
// across cache refreshes and context-builder selections; NewCacheEntry
// assigns a fresh one, and Analyzer.Analyze keeps the ID a path already
// had in the previously persisted cache.
type CacheEntry struct {
	EntryID      string    `json:"entryId"`
	FilePath     string    `json:"filePath"`
	Type         EntryType `json:"type"`
	Size         int64     `json:"size"`
	LOC          *int      `json:"loc,omitempty"`
	Summary      *string   `json:"summary,omitempty"`
	LastAnalyzed string    `json:"lastAnalyzed"`
}

// NewCacheEntry returns a CacheEntry for filePath with a fresh EntryID.
func NewCacheEntry(filePath string, typ EntryType, size int64) CacheEntry {
	return CacheEntry{EntryID: uuid.New().String(), FilePath: filePath, Type: typ, Size: size, LastAnalyzed: nowISO()}
}

// Cache is the persisted AnalysisCache: an overall summary plus an ordered,
// uniquely-keyed sequence of per-file entries.
type Cache struct {
	OverallSummary *string      `json:"overallSummary,omitempty"`
	Entries        []CacheEntry `json:"entries"`

	index map[string]int `json:"-"`
}

// NewCache returns an empty Cache ready for Upsert calls.
func NewCache() *Cache {
	return &Cache{index: map[string]int{}}
}

// Upsert inserts or replaces the entry for e.FilePath, preserving the
// order of first insertion.
func (c *Cache) Upsert(e CacheEntry) {
	if c.index == nil {
		c.index = map[string]int{}
	}
	if i, ok := c.index[e.FilePath]; ok {
		c.Entries[i] = e
		return
	}
	c.index[e.FilePath] = len(c.Entries)
	c.Entries = append(c.Entries, e)
}

// Get returns the entry for filePath, if present.
func (c *Cache) Get(filePath string) (CacheEntry, bool) {
	if c.index == nil {
		return CacheEntry{}, false
	}
	i, ok := c.index[filePath]
	if !ok {
		return CacheEntry{}, false
	}
	return c.Entries[i], true
}

// rebuildIndex recomputes the FilePath lookup index from Entries, which
// json.Unmarshal does not populate.
func (c *Cache) rebuildIndex() {
	c.index = make(map[string]int, len(c.Entries))
	for i, e := range c.Entries {
		c.index[e.FilePath] = i
	}
}

// Unmarshal populates c from persisted JSON, rebuilding the lookup index.
func Unmarshal(data []byte) (*Cache, error) {
	c := &Cache{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	c.rebuildIndex()
	return c, nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
