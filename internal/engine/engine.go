package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coffersTech/logql/internal/history"
	"github.com/coffersTech/logql/internal/pkg/logql"
)

// KindLexical is the error kind reported for lexical failures.
const KindLexical = "lexical"

// Result is the outcome of explaining one query.
type Result struct {
	ID        string         `json:"id"`
	Input     string         `json:"input"`
	Query     *logql.Query   `json:"query,omitempty"`
	Canonical string         `json:"canonical,omitempty"`
	Tree      *logql.ASTNode `json:"tree,omitempty"`
	Err       error          `json:"-"`
}

// Engine parses queries and records every outcome in the journal and stats.
type Engine struct {
	journal *history.Journal
	stats   *Stats
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an Engine. journal may be nil, in which case nothing is recorded.
func New(journal *history.Journal, stats *Stats, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		journal: journal,
		stats:   stats,
		logger:  logger,
		now:     time.Now,
	}
}

// Explain parses query and records the outcome. On failure the returned
// Result carries the ID and input, and err is the parser's error.
func (e *Engine) Explain(query string) (Result, error) {
	res := Result{ID: uuid.NewString(), Input: query}

	q, err := logql.Parse(query)
	e.record(res.ID, query, q, err)
	if err != nil {
		res.Err = err
		e.logger.Debug("Query rejected", zap.String("id", res.ID), zap.String("query", query), zap.Error(err))
		return res, err
	}

	res.Query = q
	res.Canonical = q.String()
	res.Tree = q.Tree()
	e.logger.Debug("Query parsed", zap.String("id", res.ID), zap.String("canonical", res.Canonical))
	return res, nil
}

// ExplainBatch explains each query independently. Failures are reported in
// the matching Result.Err.
func (e *Engine) ExplainBatch(queries []string) []Result {
	results := make([]Result, 0, len(queries))
	for _, q := range queries {
		res, _ := e.Explain(q)
		results = append(results, res)
	}
	return results
}

func (e *Engine) record(id, query string, q *logql.Query, err error) {
	if e.stats != nil {
		e.stats.Record(q, err)
	}
	if e.journal == nil {
		return
	}

	entry := history.Entry{
		ID:        id,
		Timestamp: e.now().UnixNano(),
		Query:     query,
		OK:        err == nil,
	}
	if err != nil {
		entry.Kind = ErrorKind(err)
		entry.Error = err.Error()
	}
	if werr := e.journal.Append(entry); werr != nil {
		e.logger.Error("History append failed", zap.Error(werr))
	}
}

// History returns up to limit recent journal entries, newest first.
func (e *Engine) History(limit int) []history.Entry {
	if e.journal == nil {
		return []history.Entry{}
	}
	return e.journal.Recent(limit)
}

// Stats returns a snapshot of the parse statistics.
func (e *Engine) Stats() PersistentStats {
	if e.stats == nil {
		return emptyStats()
	}
	return e.stats.Snapshot()
}

// SyncHistory flushes the journal to disk.
func (e *Engine) SyncHistory() {
	if e.journal == nil {
		return
	}
	if err := e.journal.Sync(); err != nil {
		e.logger.Error("History sync failed", zap.Error(err))
	}
}

// Flush persists stats and compacts the journal into an archive.
func (e *Engine) Flush() error {
	if e.stats != nil {
		if err := e.stats.Save(); err != nil {
			return fmt.Errorf("save stats: %w", err)
		}
	}
	if e.journal != nil {
		if _, err := e.journal.Compact(); err != nil {
			return fmt.Errorf("compact history: %w", err)
		}
	}
	return nil
}

// RunMaintenance saves stats, compacts the journal and purges archives older
// than retention every interval until ctx is cancelled. A non-positive
// interval disables the loop.
func (e *Engine) RunMaintenance(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		e.logger.Warn("Maintenance disabled", zap.Duration("interval", interval))
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Maintenance started", zap.Duration("interval", interval), zap.Duration("retention", retention))

	for {
		select {
		case <-ticker.C:
			e.maintain(retention)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) maintain(retention time.Duration) {
	if e.stats != nil {
		if err := e.stats.Save(); err != nil {
			e.logger.Error("Stats save failed", zap.Error(err))
		}
	}
	if e.journal == nil {
		return
	}
	if _, err := e.journal.Compact(); err != nil {
		e.logger.Error("Compaction failed", zap.Error(err))
	}
	if _, err := e.journal.PurgeExpired(retention); err != nil {
		e.logger.Error("Purge failed", zap.Error(err))
	}
}

// ErrorKind classifies a parser error: "lexical" or the syntax error kind.
func ErrorKind(err error) string {
	var synErr *logql.SyntaxError
	switch {
	case errors.As(err, &synErr):
		return synErr.Kind.String()
	case errors.Is(err, logql.ErrLexical):
		return KindLexical
	default:
		return "internal"
	}
}
