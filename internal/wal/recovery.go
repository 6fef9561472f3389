package wal

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// ReplayFunc re-attempts the commit described by an Entry. An Entry records
// no summary version, and Recovery does not check whether the entry's chunk
// was already committed; the segment summary, which lists committed
// ChunkIDs, is the only record of that.
type ReplayFunc func(Entry) error

// Recovery replays every staged WAL entry above a known high-water LSN
// after a crash, in segment (and therefore LSN) order.
type Recovery struct {
	wal *WAL
}

// NewRecovery creates a Recovery bound to wal.
func NewRecovery(w *WAL) *Recovery {
	return &Recovery{wal: w}
}

// Replay calls fn for every entry with LSN > afterLSN, across all segments
// in ascending order, and returns the count of entries for which fn succeeded.
// Individual replay failures are logged and do not stop the walk.
func (r *Recovery) Replay(afterLSN uint64, fn ReplayFunc) (int, error) {
	segmentFiles, err := r.listSegmentFiles()
	if err != nil {
		return 0, fmt.Errorf("wal: recovery failed to list segments: %w", err)
	}

	replayed := 0
	for _, segmentPath := range segmentFiles {
		entries, err := ReadEntries(segmentPath)
		if err != nil {
			log.Printf("[WARN] wal: failed to read segment %s during recovery: %v", segmentPath, err)
			continue
		}
		for _, entry := range entries {
			if entry.LSN <= afterLSN {
				continue
			}
			if err := fn(*entry); err != nil {
				log.Printf("[WARN] wal: replay failed for lsn %d: %v", entry.LSN, err)
				continue
			}
			replayed++
		}
	}

	return replayed, nil
}

func (r *Recovery) listSegmentFiles() ([]string, error) {
	files, err := os.ReadDir(r.wal.Dir())
	if err != nil {
		return nil, fmt.Errorf("wal: failed to read directory: %w", err)
	}

	var segmentFiles []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()
		if len(name) < 20 || name[:4] != "wal_" {
			continue
		}
		segmentFiles = append(segmentFiles, filepath.Join(r.wal.Dir(), name))
	}

	sort.Strings(segmentFiles)
	return segmentFiles, nil
}
