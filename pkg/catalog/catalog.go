package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dotsetgreg/repcue/pkg/logger"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// Entry is one canonical exercise. Entries are owned by the Index and must be
// treated as read-only by callers.
type Entry struct {
	ID              string   `yaml:"id" json:"id"`
	Name            string   `yaml:"name" json:"name"`
	Type            string   `yaml:"type" json:"type"`
	Equipment       []string `yaml:"equipment" json:"equipment"`
	MovementPattern string   `yaml:"movement_pattern" json:"movement_pattern"`
	Tags            []string `yaml:"tags" json:"tags"`
	Muscles         []string `yaml:"muscles" json:"muscles"`
}

func (e Entry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("catalog entry: id is required")
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("catalog entry %s: name is required", e.ID)
	}
	return nil
}

// Source lists the catalog. Implementations may return a fresh query or a
// fixed snapshot; the core never writes through it.
type Source interface {
	ListCatalog(ctx context.Context) ([]Entry, error)
}

// StaticSource serves a fixed slice, in order.
type StaticSource []Entry

func (s StaticSource) ListCatalog(ctx context.Context) ([]Entry, error) {
	out := make([]Entry, len(s))
	copy(out, s)
	return out, nil
}

type fileDocument struct {
	Exercises []Entry `yaml:"exercises"`
}

// FileSource reads a YAML document of the form `exercises: [...]`.
type FileSource struct {
	Path string
}

func (f FileSource) ListCatalog(ctx context.Context) ([]Entry, error) {
	return LoadFile(f.Path)
}

func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]Entry, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := ValidateEntries(doc.Exercises); err != nil {
		return nil, err
	}
	return doc.Exercises, nil
}

func Marshal(entries []Entry) ([]byte, error) {
	return yaml.Marshal(fileDocument{Exercises: entries})
}

// ValidateEntries rejects entries without id/name and duplicate ids.
func ValidateEntries(entries []Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		if _, ok := seen[e.ID]; ok {
			return fmt.Errorf("catalog entry %s: duplicate id", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// Index caches a catalog snapshot and refreshes it from its Source after ttl.
// Concurrent refreshes collapse into one Source call.
type Index struct {
	source Source
	ttl    time.Duration

	mu       sync.RWMutex
	entries  []Entry
	byID     map[string]int
	loadedAt time.Time

	group singleflight.Group
}

func NewIndex(source Source, ttl time.Duration) *Index {
	return &Index{source: source, ttl: ttl}
}

// Snapshot returns the current entries in catalog order, refreshing when the
// cache is empty or stale. A failed refresh with a warm cache serves the stale
// snapshot.
func (ix *Index) Snapshot(ctx context.Context) ([]Entry, error) {
	ix.mu.RLock()
	entries := ix.entries
	fresh := entries != nil && (ix.ttl <= 0 || time.Since(ix.loadedAt) < ix.ttl)
	ix.mu.RUnlock()
	if fresh {
		return entries, nil
	}

	if err := ix.Refresh(ctx); err != nil {
		if entries != nil {
			logger.WarnCF("catalog", "Catalog refresh failed, serving stale snapshot", map[string]interface{}{
				"error":   err.Error(),
				"entries": len(entries),
			})
			return entries, nil
		}
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.entries, nil
}

func (ix *Index) Refresh(ctx context.Context) error {
	_, err, _ := ix.group.Do("refresh", func() (interface{}, error) {
		entries, err := ix.source.ListCatalog(ctx)
		if err != nil {
			return nil, fmt.Errorf("list catalog: %w", err)
		}
		if entries == nil {
			entries = []Entry{}
		}
		byID := make(map[string]int, len(entries))
		for i, e := range entries {
			byID[e.ID] = i
		}

		ix.mu.Lock()
		ix.entries = entries
		ix.byID = byID
		ix.loadedAt = time.Now()
		ix.mu.Unlock()

		logger.DebugCF("catalog", "Catalog snapshot loaded", map[string]interface{}{"entries": len(entries)})
		return nil, nil
	})
	return err
}

// Lookup finds an entry by id in the current snapshot without refreshing.
func (ix *Index) Lookup(id string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	i, ok := ix.byID[id]
	if !ok {
		return Entry{}, false
	}
	return ix.entries[i], true
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}
