// Package blob implements the file store backing uploaded documents:
// date-sharded per-job paths, atomic temp-then-rename writes, a SHA-256
// hash computed on put and verified on get, and singleflight-guarded
// dedupe for concurrent puts of the same bytes under the same job ID.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/singleflight"
)

// Handle identifies a stored blob by its location and content hash.
type Handle struct {
	Path string
	Hash string
	Size int64
}

// Store is a blob store rooted at a directory, laid out as
// <root>/<date-shard>/<job-id>/<sanitized-name>; paths are not derived
// from the content hash.
type Store struct {
	root  string
	group singleflight.Group
}

// New creates a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// Put writes data under the given job ID and sanitized filename, returning
// its handle. Writes are atomic: data lands in a temp file beside the
// target, then gets renamed into place, so a reader never observes a
// partially-written blob. Concurrent Puts with the same content hash and
// the same job ID are coalesced via singleflight; the loser simply reuses
// the winner's path. Identical bytes under different job IDs are written
// separately.
func (s *Store) Put(jobID, filename string, data []byte) (Handle, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	key := hash + ":" + jobID
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		dir := filepath.Join(s.root, time.Now().UTC().Format("2006-01-02"), jobID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create blob dir %s: %w", dir, err)
		}
		dest := filepath.Join(dir, filename)

		tmp, err := os.CreateTemp(dir, ".upload-*")
		if err != nil {
			return nil, fmt.Errorf("create temp file in %s: %w", dir, err)
		}
		tmpPath := tmp.Name()
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return nil, fmt.Errorf("write temp file: %w", err)
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return nil, fmt.Errorf("sync temp file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpPath)
			return nil, fmt.Errorf("close temp file: %w", err)
		}
		if err := os.Rename(tmpPath, dest); err != nil {
			os.Remove(tmpPath)
			return nil, fmt.Errorf("rename %s to %s: %w", tmpPath, dest, err)
		}
		return Handle{Path: dest, Hash: hash, Size: int64(len(data))}, nil
	})
	if err != nil {
		return Handle{}, err
	}
	return v.(Handle), nil
}

// Get reads back the blob at handle.Path and verifies its hash still
// matches, guarding against out-of-band corruption or truncation.
func (s *Store) Get(h Handle) ([]byte, error) {
	f, err := os.Open(h.Path)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", h.Path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h.Path, err)
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != h.Hash {
		return nil, fmt.Errorf("blob %s failed hash verification", h.Path)
	}
	return data, nil
}

// Delete removes the blob at h.Path. Missing files are not an error.
func (s *Store) Delete(h Handle) error {
	if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", h.Path, err)
	}
	return nil
}

// Orphans returns stored file paths older than cutoff, for the retention
// sweeper to reclaim. Matches every shard directory under the store root.
func (s *Store) Orphans(cutoff time.Time) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(s.root), "*/*/*")
	if err != nil {
		return nil, fmt.Errorf("glob blob store: %w", err)
	}

	var stale []string
	for _, rel := range matches {
		full := filepath.Join(s.root, rel)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			stale = append(stale, full)
		}
	}
	return stale, nil
}
