package history

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// PurgeExpired removes archives whose newest entry is older than retention.
// It returns the number of files removed.
func (j *Journal) PurgeExpired(retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	archives, err := j.archivesLocked()
	if err != nil {
		return 0, err
	}

	threshold := time.Now().Add(-retention).UnixNano()
	removed := 0
	for _, a := range archives {
		if a.MaxTs >= threshold {
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			j.logger.Error("Failed to delete expired archive", zap.String("path", a.Path), zap.Error(err))
			continue
		}
		j.logger.Info("Expired archive deleted", zap.String("archive", filepath.Base(a.Path)))
		removed++
	}
	return removed, nil
}
