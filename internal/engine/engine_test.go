package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/logql/internal/history"
	"github.com/coffersTech/logql/internal/pkg/logql"
)

func newTestEngine(t *testing.T) (*Engine, *history.Journal, string) {
	t.Helper()
	dir := t.TempDir()
	j, err := history.Open(dir, 100, nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return New(j, LoadStats(dir), nil), j, dir
}

func TestExplain(t *testing.T) {
	e, _, _ := newTestEngine(t)

	res, err := e.Explain("SELECT title,severity FROM 'app.log' WHERE title LIKE 'dies, das'")
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	require.NotNil(t, res.Query)
	assert.Equal(t, "SELECT title, severity FROM 'app.log' WHERE title LIKE 'dies, das'", res.Canonical)
	require.NotNil(t, res.Tree)
	assert.Equal(t, logql.LogResult{}, res.Tree.Right.Entry)
	assert.NoError(t, res.Err)
}

func TestExplainFailure(t *testing.T) {
	e, _, _ := newTestEngine(t)

	res, err := e.Explain("SELECT title FROM 'app.log' LIMIT LAST -10")
	require.Error(t, err)
	assert.True(t, errors.Is(err, logql.ErrLexical))
	assert.Equal(t, err, res.Err)
	assert.Nil(t, res.Query)
	assert.Nil(t, res.Tree)
	assert.NotEmpty(t, res.ID)
}

func TestExplainRecordsHistory(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.Explain("SELECT a FROM 'f'")
	require.NoError(t, err)
	_, err = e.Explain("SELECT a, FROM 'f'")
	require.Error(t, err)

	entries := e.History(10)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].OK)
	assert.Equal(t, "dangling_comma", entries[0].Kind)
	assert.Equal(t, "SELECT a, FROM 'f'", entries[0].Query)
	assert.True(t, entries[1].OK)
	assert.Empty(t, entries[1].Kind)
}

func TestExplainBatch(t *testing.T) {
	e, _, _ := newTestEngine(t)

	results := e.ExplainBatch([]string{
		"SELECT a FROM 'f' LIMIT 3",
		"SELECT a FROM 'f' WHERE x like 'y'",
		"SELECT b FROM 'g'",
	})
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "SELECT b FROM 'g'", results[2].Canonical)
}

func TestStatsRecord(t *testing.T) {
	e, _, _ := newTestEngine(t)

	queries := []string{
		"SELECT a FROM 'app.log' WHERE x = 'y'",
		"SELECT a FROM 'app.log' WHERE x LIKE 'y' LIMIT LAST 5",
		"SELECT a FROM 'other.log' LIMIT 5",
		"SELECT a FROM 'app.log' LIMIT -5",
		"SELECT FROM 'app.log'",
		"SELECT a FROM 'app.log' WHERE x Like 'y'",
	}
	for _, q := range queries {
		e.Explain(q)
	}

	stats := e.Stats()
	assert.Equal(t, int64(6), stats.Total)
	assert.Equal(t, int64(3), stats.Succeeded)
	assert.Equal(t, int64(1), stats.LexErrors)
	assert.Equal(t, int64(2), stats.SyntaxErrors)
	assert.Equal(t, int64(2), stats.WithFilter)
	assert.Equal(t, int64(1), stats.LikeFilters)
	assert.Equal(t, int64(2), stats.WithLimit)
	assert.Equal(t, int64(1), stats.TailLimits)
	assert.Equal(t, map[string]int64{"app.log": 2, "other.log": 1}, stats.Files)
	assert.Equal(t, map[string]int64{
		"expected_identifier_got_keyword": 1,
		"expected_comparator":             1,
	}, stats.ErrorKinds)
}

func TestStatsPersistence(t *testing.T) {
	e, _, dir := newTestEngine(t)

	e.Explain("SELECT a FROM 'f'")
	e.Explain("SELECT a FROM")
	require.NoError(t, e.Flush())

	loaded := LoadStats(dir).Snapshot()
	assert.Equal(t, int64(2), loaded.Total)
	assert.Equal(t, int64(1), loaded.Succeeded)
	assert.Equal(t, int64(1), loaded.ErrorKinds["expected_string"])
}

func TestLoadStatsCorrupted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, statsFileName), []byte("{not json"), 0644))

	stats := LoadStats(dir).Snapshot()
	assert.Equal(t, int64(0), stats.Total)
	assert.NotNil(t, stats.Files)
	assert.NotNil(t, stats.ErrorKinds)
}

func TestFlushCompactsHistory(t *testing.T) {
	e, j, _ := newTestEngine(t)

	e.Explain("SELECT a FROM 'f'")
	require.NoError(t, e.Flush())

	archives, err := j.Archives()
	require.NoError(t, err)
	assert.Len(t, archives, 1)
	assert.Len(t, e.History(0), 1)
}

func TestEngineWithoutJournal(t *testing.T) {
	e := New(nil, nil, nil)

	_, err := e.Explain("SELECT a FROM 'f'")
	require.NoError(t, err)
	assert.Empty(t, e.History(10))
	assert.Equal(t, int64(0), e.Stats().Total)
	assert.NoError(t, e.Flush())
	e.SyncHistory()
}

func TestErrorKind(t *testing.T) {
	_, err := logql.Parse("SELECT a FROM 'f' LIMIT")
	assert.Equal(t, "expected_number", ErrorKind(err))

	_, err = logql.Parse("SELECT # FROM 'f'")
	assert.Equal(t, KindLexical, ErrorKind(err))

	assert.Equal(t, "internal", ErrorKind(errors.New("boom")))
}

func TestRunMaintenance(t *testing.T) {
	e, j, dir := newTestEngine(t)

	_, err := e.Explain("SELECT a FROM 'app.log'")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.RunMaintenance(ctx, 10*time.Millisecond, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		archives, err := j.Archives()
		if err != nil || len(archives) != 1 {
			return false
		}
		_, err = os.Stat(filepath.Join(dir, statsFileName))
		return err == nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("maintenance loop did not stop")
	}

	loaded := LoadStats(dir).Snapshot()
	assert.Equal(t, int64(1), loaded.Total)
	assert.Equal(t, int64(1), loaded.Files["app.log"])
}

func TestRunMaintenanceNonPositiveInterval(t *testing.T) {
	e, _, _ := newTestEngine(t)

	for _, interval := range []time.Duration{0, -time.Second} {
		done := make(chan struct{})
		go func() {
			e.RunMaintenance(context.Background(), interval, time.Hour)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("RunMaintenance(%s) did not return", interval)
		}
	}
}
