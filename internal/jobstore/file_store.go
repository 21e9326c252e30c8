package jobstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/standardbeagle/docparse/internal/types"
)

// FileStore wraps Store with periodic JSON snapshotting to a single file,
// so an in-process restart does not lose job state. It is not a general
// database: reads are served from the in-memory Store, and the snapshot
// exists purely for recovery on startup.
type FileStore struct {
	*Store
	path string

	snapshotMu sync.Mutex
}

type snapshot struct {
	Jobs []*types.Job `json:"jobs"`
}

// NewFileStore creates a FileStore backed by path, loading any existing
// snapshot found there.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{Store: New(), path: path}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot %s: %w", fs.path, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot %s: %w", fs.path, err)
	}

	fs.Store.mu.Lock()
	defer fs.Store.mu.Unlock()
	for _, j := range snap.Jobs {
		fs.Store.jobs[j.ID] = j
		if j.BatchID != nil {
			fs.Store.byBatch[*j.BatchID] = append(fs.Store.byBatch[*j.BatchID], j.ID)
		}
	}
	return nil
}

// Snapshot writes the current job set to disk atomically (temp file then
// rename), so a crash mid-write never corrupts the existing snapshot.
func (fs *FileStore) Snapshot() error {
	fs.snapshotMu.Lock()
	defer fs.snapshotMu.Unlock()

	fs.Store.mu.RLock()
	jobs := make([]*types.Job, 0, len(fs.Store.jobs))
	for _, j := range fs.Store.jobs {
		jobs = append(jobs, j)
	}
	fs.Store.mu.RUnlock()

	data, err := json.Marshal(snapshot{Jobs: jobs})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(fs.path)
	tmp, err := os.CreateTemp(dir, ".jobstore-snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// RunPeriodicSnapshot blocks, writing a snapshot every interval, until stop
// is closed; it writes one final snapshot before returning.
func (fs *FileStore) RunPeriodicSnapshot(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			_ = fs.Snapshot()
			return
		case <-ticker.C:
			_ = fs.Snapshot()
		}
	}
}
