package recording

import (
	"io/fs"
	"log"
	"os"
	"time"
)

// Sweep deletes recording files whose last-modified time is older than
// maxAgeDays and returns the number of files removed. Files belonging to a
// non-terminal live session are never candidates, regardless of age.
// Per-file deletion failures are logged and skipped; they never abort the
// sweep.
func (m *Manager) Sweep(maxAgeDays int) int {
	if maxAgeDays <= 0 {
		return 0
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	keep := m.activePaths()
	deleted := 0

	m.walkFiles(func(path string, info fs.FileInfo) {
		if keep[path] {
			return
		}
		if !info.ModTime().Before(cutoff) {
			return
		}
		if err := os.Remove(path); err != nil {
			log.Printf("recording: sweep failed to delete %s: %v", path, err)
			return
		}
		deleted++
	})

	log.Printf("recording: sweep removed %d file(s) older than %d day(s)", deleted, maxAgeDays)
	return deleted
}
