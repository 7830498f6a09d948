package history

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MagicHeader opens every history archive.
var MagicHeader = []byte("LOGQLH1\x00")

var ErrInvalidHeader = errors.New("invalid history archive header")

const footerSize = 20 // Count(4) + MinTs(8) + MaxTs(8)

// ArchiveInfo describes one archive file.
type ArchiveInfo struct {
	Path  string `json:"path"`
	MinTs int64  `json:"min_ts"`
	MaxTs int64  `json:"max_ts"`
}

// Compact moves every WAL entry into a new zstd archive and truncates the
// WAL. It returns the archive path, or "" when the WAL was empty.
func (j *Journal) Compact() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.replayLocked()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}

	minTs, maxTs := entries[0].Timestamp, entries[0].Timestamp
	for _, e := range entries[1:] {
		if e.Timestamp < minTs {
			minTs = e.Timestamp
		}
		if e.Timestamp > maxTs {
			maxTs = e.Timestamp
		}
	}

	name := fmt.Sprintf("history_%d_%d_%s.zst", minTs, maxTs, uuid.NewString()[:8])
	path := filepath.Join(j.dir, name)
	if err := j.writeArchive(path, entries, minTs, maxTs); err != nil {
		os.Remove(path)
		return "", err
	}

	if err := j.resetLocked(); err != nil {
		return path, fmt.Errorf("WAL reset: %w", err)
	}

	j.logger.Info("History compacted", zap.String("archive", name), zap.Int("entries", len(entries)))
	return path, nil
}

// writeArchive writes header, one compressed block of JSON lines, and footer.
func (j *Journal) writeArchive(path string, entries []Entry, minTs, maxTs int64) error {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	raw := buf.Bytes()
	compressed := j.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(MagicHeader); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(compressed))); err != nil {
		return err
	}
	if _, err := f.Write(compressed); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(entries))); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, minTs); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, maxTs); err != nil {
		return err
	}
	return f.Sync()
}

// ReadArchive returns the entries stored in an archive, oldest first.
func (j *Journal) ReadArchive(path string) ([]Entry, error) {
	return j.readArchive(path)
}

func (j *Journal) readArchive(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, len(MagicHeader))
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, err
	}
	if !bytes.Equal(header, MagicHeader) {
		return nil, ErrInvalidHeader
	}

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < int64(len(MagicHeader)+4+footerSize) {
		return nil, errors.New("archive too small")
	}

	footer := make([]byte, footerSize)
	if _, err := f.ReadAt(footer, info.Size()-footerSize); err != nil {
		return nil, err
	}
	count := binary.LittleEndian.Uint32(footer[0:4])

	var size uint32
	if err := binary.Read(f, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	compressed := make([]byte, size)
	if _, err := io.ReadFull(f, compressed); err != nil {
		return nil, err
	}

	raw, err := j.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, count)
	dec := json.NewDecoder(bytes.NewReader(raw))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}

	if len(entries) != int(count) {
		return entries, fmt.Errorf("archive entry count mismatch: footer %d, decoded %d", count, len(entries))
	}
	return entries, nil
}

// Archives lists the archive files, newest first.
func (j *Journal) Archives() ([]ArchiveInfo, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.archivesLocked()
}

func (j *Journal) archivesLocked() ([]ArchiveInfo, error) {
	dirEntries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var archives []ArchiveInfo
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		minTs, maxTs, err := parseArchiveName(de.Name())
		if err != nil {
			continue
		}
		archives = append(archives, ArchiveInfo{
			Path:  filepath.Join(j.dir, de.Name()),
			MinTs: minTs,
			MaxTs: maxTs,
		})
	}

	sort.Slice(archives, func(a, b int) bool {
		if archives[a].MaxTs != archives[b].MaxTs {
			return archives[a].MaxTs > archives[b].MaxTs
		}
		return archives[a].Path > archives[b].Path
	})
	return archives, nil
}

// parseArchiveName extracts min and max timestamps from
// history_{minTs}_{maxTs}_{id}.zst.
func parseArchiveName(name string) (int64, int64, error) {
	if !strings.HasPrefix(name, "history_") || !strings.HasSuffix(name, ".zst") {
		return 0, 0, fmt.Errorf("invalid format")
	}
	content := strings.TrimSuffix(strings.TrimPrefix(name, "history_"), ".zst")
	parts := strings.Split(content, "_")
	if len(parts) != 3 {
		return 0, 0, fmt.Errorf("invalid parts")
	}
	minTs, err1 := strconv.ParseInt(parts[0], 10, 64)
	maxTs, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("invalid timestamps")
	}
	return minTs, maxTs, nil
}
