package cleanup

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/docparse/internal/blob"
	"github.com/standardbeagle/docparse/internal/jobstore"
	"github.com/standardbeagle/docparse/internal/types"
)

func TestRunDeletesOldTerminalJobAndItsBlob(t *testing.T) {
	store := jobstore.New()
	blobs, err := blob.New(t.TempDir())
	require.NoError(t, err)

	handle, err := blobs.Put("job-1", "recipe.pdf", []byte("%PDF-1.4\n%%EOF"))
	require.NoError(t, err)

	job := &types.Job{
		Filename:    "recipe.pdf",
		SizeBytes:   handle.Size,
		ContentHash: handle.Hash,
		BlobHandle:  handle.Path,
		ParsingType: types.ParsingRecipe,
		Priority:    types.PriorityNormal,
	}
	id, err := store.Create(job)
	require.NoError(t, err)
	require.NoError(t, store.Transition(id, []types.State{types.StatePending}, types.StateCompleted, nil, nil))

	sweeper := New(store, blobs, 30)

	// Cleanup compares UpdatedAt against now-retentionDays and reclaims
	// jobs not updated after that cutoff, so a large retentionDays keeps
	// the job while 0 reclaims anything already terminal: the cutoff is
	// taken after the transition above, so UpdatedAt is not after it.
	res := sweeper.Run(0)

	assert.Equal(t, 1, res.JobsDeleted)
	_, err = store.Get(id)
	assert.ErrorIs(t, err, jobstore.ErrNotFound)

	_, statErr := os.Stat(handle.Path)
	assert.True(t, os.IsNotExist(statErr), "expected orphaned blob to be removed")
}

func TestRunKeepsJobsWithinRetentionWindow(t *testing.T) {
	store := jobstore.New()
	blobs, err := blob.New(t.TempDir())
	require.NoError(t, err)

	handle, err := blobs.Put("job-2", "label.pdf", []byte("%PDF-1.4\n%%EOF"))
	require.NoError(t, err)

	job := &types.Job{
		Filename:    "label.pdf",
		SizeBytes:   handle.Size,
		ContentHash: handle.Hash,
		BlobHandle:  handle.Path,
		ParsingType: types.ParsingNutritionLabel,
		Priority:    types.PriorityNormal,
	}
	id, err := store.Create(job)
	require.NoError(t, err)
	require.NoError(t, store.Transition(id, []types.State{types.StatePending}, types.StateCompleted, nil, nil))

	sweeper := New(store, blobs, 30)
	res := sweeper.Run(30)

	assert.Equal(t, 0, res.JobsDeleted)
	_, err = store.Get(id)
	assert.NoError(t, err)
}

func TestRunPeriodicStopsOnSignal(t *testing.T) {
	store := jobstore.New()
	blobs, err := blob.New(t.TempDir())
	require.NoError(t, err)

	sweeper := New(store, blobs, 30)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		sweeper.RunPeriodic(stop, time.Millisecond)
		close(done)
	}()
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPeriodic did not stop after signal")
	}
}
