package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(i int, ts int64) Entry {
	return Entry{
		ID:        fmt.Sprintf("id-%d", i),
		Timestamp: ts,
		Query:     fmt.Sprintf("SELECT f%d FROM 'app.log'", i),
		OK:        true,
	}
}

func TestJournalAppendReplay(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 10, nil)
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, j.Append(entry(i, int64(i+1))))
	}
	require.NoError(t, j.Sync())

	entries, err := j.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "id-0", entries[0].ID)
	assert.Equal(t, "id-2", entries[2].ID)

	// Appends after a replay still land at the end.
	require.NoError(t, j.Append(entry(3, 4)))
	entries, err = j.Replay()
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestJournalRecent(t *testing.T) {
	j, err := Open(t.TempDir(), 3, nil)
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Append(entry(i, int64(i))))
	}

	recent := j.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "id-4", recent[0].ID)
	assert.Equal(t, "id-2", recent[2].ID)

	recent = j.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "id-4", recent[0].ID)
}

func TestJournalRestoresAfterReopen(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 10, nil)
	require.NoError(t, err)
	require.NoError(t, j.Append(entry(0, 1)))
	require.NoError(t, j.Append(entry(1, 2)))
	require.NoError(t, j.Close())

	j, err = Open(dir, 10, nil)
	require.NoError(t, err)
	defer j.Close()

	recent := j.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "id-1", recent[0].ID)
}

func TestJournalTornRecord(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 10, nil)
	require.NoError(t, err)
	require.NoError(t, j.Append(entry(0, 1)))
	require.NoError(t, j.Close())

	f, err := os.OpenFile(filepath.Join(dir, walFileName), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xff, 0x00})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	j, err = Open(dir, 10, nil)
	require.NoError(t, err)
	defer j.Close()

	assert.Len(t, j.Recent(0), 1)
	_, err = j.Replay()
	assert.Error(t, err)
}

func TestJournalCompact(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 10, nil)
	require.NoError(t, err)
	defer j.Close()

	path, err := j.Compact()
	require.NoError(t, err)
	assert.Empty(t, path, "empty WAL produces no archive")

	for i := 0; i < 4; i++ {
		require.NoError(t, j.Append(entry(i, int64(100+i))))
	}

	path, err = j.Compact()
	require.NoError(t, err)
	require.NotEmpty(t, path)
	assert.Contains(t, filepath.Base(path), "history_100_103_")

	walEntries, err := j.Replay()
	require.NoError(t, err)
	assert.Empty(t, walEntries)
	assert.Len(t, j.Recent(0), 4)

	archived, err := j.ReadArchive(path)
	require.NoError(t, err)
	require.Len(t, archived, 4)
	assert.Equal(t, entry(0, 100), archived[0])
	assert.Equal(t, entry(3, 103), archived[3])

	archives, err := j.Archives()
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.Equal(t, int64(100), archives[0].MinTs)
	assert.Equal(t, int64(103), archives[0].MaxTs)
}

func TestJournalRestoresFromArchives(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 5, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, j.Append(entry(i, int64(i+1))))
	}
	_, err = j.Compact()
	require.NoError(t, err)
	for i := 3; i < 7; i++ {
		require.NoError(t, j.Append(entry(i, int64(i+1))))
	}
	_, err = j.Compact()
	require.NoError(t, err)
	require.NoError(t, j.Append(entry(7, 8)))
	require.NoError(t, j.Close())

	j, err = Open(dir, 5, nil)
	require.NoError(t, err)
	defer j.Close()

	recent := j.Recent(0)
	require.Len(t, recent, 5)
	assert.Equal(t, "id-7", recent[0].ID)
	assert.Equal(t, "id-3", recent[4].ID)
}

func TestReadArchiveInvalidHeader(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 10, nil)
	require.NoError(t, err)
	defer j.Close()

	path := filepath.Join(dir, "history_1_2_deadbeef.zst")
	require.NoError(t, os.WriteFile(path, []byte("NOTANARCHIVE-------------------------"), 0644))

	_, err = j.ReadArchive(path)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestParseArchiveName(t *testing.T) {
	minTs, maxTs, err := parseArchiveName("history_10_20_abcd1234.zst")
	require.NoError(t, err)
	assert.Equal(t, int64(10), minTs)
	assert.Equal(t, int64(20), maxTs)

	for _, name := range []string{"history.wal", "history_10_20.zst", "history_a_b_c.zst", "log_1_2.nano"} {
		_, _, err := parseArchiveName(name)
		assert.Error(t, err, name)
	}
}

func TestPurgeExpired(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 10, nil)
	require.NoError(t, err)
	defer j.Close()

	old := time.Now().Add(-48 * time.Hour).UnixNano()
	fresh := time.Now().UnixNano()

	require.NoError(t, j.Append(entry(0, old)))
	oldPath, err := j.Compact()
	require.NoError(t, err)
	require.NoError(t, j.Append(entry(1, fresh)))
	freshPath, err := j.Compact()
	require.NoError(t, err)

	removed, err := j.PurgeExpired(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, oldPath)
	assert.FileExists(t, freshPath)

	removed, err = j.PurgeExpired(0)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
