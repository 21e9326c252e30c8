// Package cleanup implements the retention sweep: deleting terminal job
// records and orphaned blobs once they're older than the configured
// retention window.
package cleanup

import (
	"log"
	"os"
	"time"

	"github.com/standardbeagle/docparse/internal/blob"
	"github.com/standardbeagle/docparse/internal/jobstore"
	"github.com/standardbeagle/docparse/internal/types"
)

// Sweeper removes terminal job records and orphaned blobs past the
// configured retention window.
type Sweeper struct {
	store         *jobstore.Store
	blobs         *blob.Store
	retentionDays int
}

// New builds a Sweeper with the given default retention window in days,
// used by RunPeriodic; Run accepts an explicit override for on-demand
// sweeps (e.g. POST /admin/cleanup's "days" field).
func New(store *jobstore.Store, blobs *blob.Store, retentionDays int) *Sweeper {
	return &Sweeper{store: store, blobs: blobs, retentionDays: retentionDays}
}

// Result summarizes one sweep pass.
type Result struct {
	JobsDeleted  int
	BlobsDeleted int
}

// Run performs one sweep with the given retention window in days: terminal
// job records older than the window are deleted from the store, then any
// blob file older than the same cutoff is removed regardless of whether a
// job still references it — the job store's hard delete leaves no trail to
// follow, so the blob side is swept independently by file age via
// blob.Store.Orphans.
func (s *Sweeper) Run(retentionDays int) Result {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	deleted := s.store.Cleanup(cutoff, []types.State{
		types.StateCompleted, types.StateFailed, types.StateCancelled,
	})

	orphans, err := s.blobs.Orphans(cutoff)
	if err != nil {
		log.Printf("[cleanup] orphan scan failed: %v", err)
		return Result{JobsDeleted: len(deleted)}
	}

	blobsDeleted := 0
	for _, path := range orphans {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("[cleanup] failed to remove orphaned blob %s: %v", path, err)
			continue
		}
		blobsDeleted++
	}

	return Result{JobsDeleted: len(deleted), BlobsDeleted: blobsDeleted}
}

// RunPeriodic runs Run on interval until stop is closed.
func (s *Sweeper) RunPeriodic(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			res := s.Run(s.retentionDays)
			if res.JobsDeleted > 0 || res.BlobsDeleted > 0 {
				log.Printf("[cleanup] swept %d jobs, %d blobs", res.JobsDeleted, res.BlobsDeleted)
			}
		}
	}
}
