// Package knowledge serves the program's JSON datasets to handlers: files
// on disk, loaded into an explicit cache, searched with plain substring
// matching. Ranking quality is not this package's business; handlers decide
// what to do with the matches.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"askdesk/internal/domain"
)

// maxItems bounds one lookup response.
const maxItems = 25

// Store is the dataset cache. All access goes through the RWMutex; Reload
// swaps the whole map so lookups never observe a half-loaded state.
type Store struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	datasets map[string][]map[string]any
	loadedAt time.Time
}

// NewStore loads every *.json file under dir. The file base name becomes
// the dataset name ("startups.json" → "startups").
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	s := &Store{dir: dir, logger: logger}
	if err := s.Reload(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the directory and atomically replaces the cache. This is
// the store's only invalidation path; there is no per-entry eviction.
func (s *Store) Reload(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("knowledge: read dir %s: %w", s.dir, err)
	}

	fresh := make(map[string][]map[string]any)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		records, err := loadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("knowledge: load %s: %w", entry.Name(), err)
		}
		fresh[name] = records
	}

	s.mu.Lock()
	s.datasets = fresh
	s.loadedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("knowledge datasets loaded", "datasets", len(fresh), "dir", s.dir)
	return nil
}

// loadFile accepts either a top-level array of objects or an object with an
// "items" array.
func loadFile(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var wrapper struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("neither array nor items object: %w", err)
	}
	return wrapper.Items, nil
}

// Lookup runs a case-insensitive substring search over every string value
// of every record. An empty dataset searches all datasets.
func (s *Store) Lookup(_ context.Context, dataset, query string) (domain.LookupResult, error) {
	needle := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	if dataset == "" {
		for name := range s.datasets {
			names = append(names, name)
		}
		sort.Strings(names)
	} else {
		if _, ok := s.datasets[dataset]; !ok {
			return domain.LookupResult{}, fmt.Errorf("knowledge: unknown dataset %q", dataset)
		}
		names = []string{dataset}
	}

	var items []map[string]any
	for _, name := range names {
		for _, record := range s.datasets[name] {
			if needle == "" || recordMatches(record, needle) {
				items = append(items, record)
				if len(items) >= maxItems {
					break
				}
			}
		}
		if len(items) >= maxItems {
			break
		}
	}

	return domain.LookupResult{
		Items: items,
		Found: len(items) > 0,
		Metadata: map[string]string{
			"loaded_at": s.loadedAt.UTC().Format(time.RFC3339),
			"query":     query,
		},
	}, nil
}

func recordMatches(record map[string]any, needle string) bool {
	for _, v := range record {
		if str, ok := v.(string); ok && strings.Contains(strings.ToLower(str), needle) {
			return true
		}
	}
	return false
}

// Datasets returns the loaded dataset names, sorted.
func (s *Store) Datasets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.datasets))
	for name := range s.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScheduleRefresh registers Reload on the given cron schedule. Refresh
// failures keep the previous cache and are logged, not fatal.
func (s *Store) ScheduleRefresh(c *cron.Cron, schedule string) error {
	_, err := c.AddFunc(schedule, func() {
		if err := s.Reload(context.Background()); err != nil {
			s.logger.Warn("knowledge refresh failed, keeping previous cache", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("knowledge: schedule refresh: %w", err)
	}
	return nil
}

var _ domain.KnowledgeSource = (*Store)(nil)
