package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/coffersTech/logql/internal/pkg/logql"
)

// PersistentStats holds cumulative parse statistics that survive restarts.
type PersistentStats struct {
	Total        int64            `json:"total"`
	Succeeded    int64            `json:"succeeded"`
	LexErrors    int64            `json:"lex_errors"`
	SyntaxErrors int64            `json:"syntax_errors"`
	WithFilter   int64            `json:"with_filter"`
	WithLimit    int64            `json:"with_limit"`
	LikeFilters  int64            `json:"like_filters"`
	TailLimits   int64            `json:"tail_limits"`
	ErrorKinds   map[string]int64 `json:"error_kinds"` // error kind -> count
	Files        map[string]int64 `json:"files"`       // filename -> count
}

// statsFileName is the filename for persisted stats
const statsFileName = ".logql.stats"

// Stats accumulates PersistentStats and persists them in dataDir.
type Stats struct {
	dataDir string
	mu      sync.RWMutex
	data    PersistentStats
	dirty   bool
}

// LoadStats reads stats from dataDir. A missing or corrupted file yields empty stats.
func LoadStats(dataDir string) *Stats {
	s := &Stats{dataDir: dataDir, data: emptyStats()}

	data, err := os.ReadFile(filepath.Join(dataDir, statsFileName))
	if err != nil {
		return s
	}

	var loaded PersistentStats
	if err := json.Unmarshal(data, &loaded); err != nil {
		return s
	}
	if loaded.ErrorKinds == nil {
		loaded.ErrorKinds = make(map[string]int64)
	}
	if loaded.Files == nil {
		loaded.Files = make(map[string]int64)
	}
	s.data = loaded
	return s
}

func emptyStats() PersistentStats {
	return PersistentStats{
		ErrorKinds: make(map[string]int64),
		Files:      make(map[string]int64),
	}
}

// Record counts one parse outcome. q is nil when err is set.
func (s *Stats) Record(q *logql.Query, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dirty = true
	s.data.Total++
	if err != nil {
		if kind := ErrorKind(err); kind == KindLexical {
			s.data.LexErrors++
		} else {
			s.data.SyntaxErrors++
			s.data.ErrorKinds[kind]++
		}
		return
	}

	s.data.Succeeded++
	s.data.Files[q.Source.Filename]++
	if q.Filter != nil {
		s.data.WithFilter++
		if q.Filter.Comparator == logql.Like {
			s.data.LikeFilters++
		}
	}
	if q.Limit != nil {
		s.data.WithLimit++
		if q.Limit.Direction == logql.Last {
			s.data.TailLimits++
		}
	}
}

// Snapshot returns a deep copy of the current stats.
func (s *Stats) Snapshot() PersistentStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.data
	out.ErrorKinds = make(map[string]int64, len(s.data.ErrorKinds))
	for k, v := range s.data.ErrorKinds {
		out.ErrorKinds[k] = v
	}
	out.Files = make(map[string]int64, len(s.data.Files))
	for k, v := range s.data.Files {
		out.Files[k] = v
	}
	return out
}

// Save writes stats to disk atomically. It is a no-op when nothing changed.
func (s *Stats) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(s.dataDir, statsFileName)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	s.dirty = false
	return nil
}
