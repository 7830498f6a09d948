package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const walFileName = "history.wal"

// Entry is one parsed query as recorded by the journal.
type Entry struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // unix nanoseconds
	Query     string `json:"query"`
	OK        bool   `json:"ok"`
	Kind      string `json:"kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Journal is a write-ahead log of parsed queries plus an in-memory tail of
// the most recent entries. Compact moves the log into zstd archives.
type Journal struct {
	dir        string
	path       string
	maxEntries int
	logger     *zap.Logger

	mu     sync.Mutex
	file   *os.File
	recent []Entry // oldest first, at most maxEntries

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open opens or creates the journal in dir and restores the recent tail from
// the WAL and, if needed, from the newest archives.
func Open(dir string, maxEntries int, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	path := filepath.Join(dir, walFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		f.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		f.Close()
		enc.Close()
		return nil, err
	}

	j := &Journal{
		dir:        dir,
		path:       path,
		maxEntries: maxEntries,
		logger:     logger,
		file:       f,
		encoder:    enc,
		decoder:    dec,
	}

	if err := j.restore(); err != nil {
		logger.Warn("History restore incomplete", zap.Error(err))
	}
	return j, nil
}

func (j *Journal) restore() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	walEntries, err := j.replayLocked()
	if err != nil {
		// Keep whatever was readable before the torn record.
		j.remember(walEntries...)
		return err
	}

	if len(walEntries) < j.maxEntries {
		archives, err := j.archivesLocked()
		if err != nil {
			j.remember(walEntries...)
			return err
		}
		var older []Entry
		for _, a := range archives {
			entries, err := j.readArchive(a.Path)
			if err != nil {
				j.logger.Warn("Skipping unreadable archive", zap.String("path", a.Path), zap.Error(err))
				continue
			}
			older = append(entries, older...)
			if len(older)+len(walEntries) >= j.maxEntries {
				break
			}
		}
		j.remember(older...)
	}

	j.remember(walEntries...)
	if len(j.recent) > 0 {
		j.logger.Info("History restored", zap.Int("entries", len(j.recent)))
	}
	return nil
}

// remember appends to the recent tail, dropping the oldest entries over the cap.
func (j *Journal) remember(entries ...Entry) {
	j.recent = append(j.recent, entries...)
	if over := len(j.recent) - j.maxEntries; over > 0 {
		j.recent = append(j.recent[:0:0], j.recent[over:]...)
	}
}

// Append records an entry to the WAL and the recent tail.
func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	// Format: [Len uint32][JSON Bytes]
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))

	if _, err := j.file.Write(lenBuf); err != nil {
		return err
	}
	if _, err := j.file.Write(data); err != nil {
		return err
	}

	j.remember(e)
	return nil
}

// Recent returns up to n entries, newest first. n <= 0 returns all of them.
func (j *Journal) Recent(n int) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	if n <= 0 || n > len(j.recent) {
		n = len(j.recent)
	}
	out := make([]Entry, 0, n)
	for i := len(j.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, j.recent[i])
	}
	return out
}

// Sync flushes the WAL file buffers to disk.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Sync()
}

// Replay reads the WAL and returns its entries, oldest first.
func (j *Journal) Replay() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.replayLocked()
}

func (j *Journal) replayLocked() ([]Entry, error) {
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var entries []Entry
	for {
		lenBuf := make([]byte, 4)
		_, err := io.ReadFull(j.file, lenBuf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, fmt.Errorf("WAL replay error (len): %w", err)
		}

		length := binary.LittleEndian.Uint32(lenBuf)
		data := make([]byte, length)
		if _, err := io.ReadFull(j.file, data); err != nil {
			return entries, fmt.Errorf("WAL replay error (data): %w", err)
		}

		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return entries, fmt.Errorf("WAL replay error (unmarshal): %w", err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Reset truncates the WAL. The recent tail is kept.
func (j *Journal) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.resetLocked()
}

func (j *Journal) resetLocked() error {
	if err := j.file.Truncate(0); err != nil {
		return err
	}
	_, err := j.file.Seek(0, io.SeekStart)
	return err
}

// Close closes the WAL file and releases the codecs.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.encoder.Close()
	j.decoder.Close()
	return j.file.Close()
}
