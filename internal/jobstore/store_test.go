package jobstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/docparse/internal/types"
)

func newTestJob() *types.Job {
	return &types.Job{
		Filename:    "label.pdf",
		ParsingType: types.ParsingNutritionLabel,
		Priority:    types.PriorityNormal,
	}
}

func TestCreateAssignsPendingState(t *testing.T) {
	s := New()
	id, err := s.Create(newTestJob())
	require.NoError(t, err)

	j, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatePending, j.State)
}

func TestTransitionEnforcesFromStates(t *testing.T) {
	s := New()
	id, _ := s.Create(newTestJob())

	err := s.Transition(id, []types.State{types.StateQueued}, types.StateLeased, nil, nil)
	assert.ErrorIs(t, err, ErrConflict)

	err = s.Transition(id, []types.State{types.StatePending}, types.StateQueued, nil, nil)
	require.NoError(t, err)

	j, _ := s.Get(id)
	assert.Equal(t, types.StateQueued, j.State)
}

func TestTransitionOptimisticLock(t *testing.T) {
	s := New()
	id, _ := s.Create(newTestJob())
	j, _ := s.Get(id)
	stale := j.UpdatedAt

	require.NoError(t, s.Transition(id, []types.State{types.StatePending}, types.StateQueued, nil, nil))

	err := s.Transition(id, []types.State{types.StateQueued}, types.StateLeased, &stale, nil)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUpdateProgressClampsNonDecreasing(t *testing.T) {
	s := New()
	id, _ := s.Create(newTestJob())
	require.NoError(t, s.Transition(id, []types.State{types.StatePending}, types.StateLeased, nil, nil))

	require.NoError(t, s.UpdateProgress(id, "extract_text", 40))
	require.NoError(t, s.UpdateProgress(id, "detect_type", 10))

	j, _ := s.Get(id)
	assert.Equal(t, 40, j.Progress)
}

func TestUpdateProgressRejectedOutsideLeasedOrRunning(t *testing.T) {
	s := New()
	id, _ := s.Create(newTestJob())
	err := s.UpdateProgress(id, "extract_text", 40)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestListOrdersByCreatedAtDescending(t *testing.T) {
	s := New()
	id1, _ := s.Create(newTestJob())
	time.Sleep(2 * time.Millisecond)
	id2, _ := s.Create(newTestJob())

	jobs, total, err := s.List(Filter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, jobs, 2)
	assert.Equal(t, id2, jobs[0].ID)
	assert.Equal(t, id1, jobs[1].ID)
}

func TestCleanupDeletesOldTerminalJobs(t *testing.T) {
	s := New()
	id, _ := s.Create(newTestJob())
	require.NoError(t, s.Transition(id, []types.State{types.StatePending}, types.StateCompleted, nil, nil))

	deleted := s.Cleanup(time.Now().Add(time.Hour), []types.State{types.StateCompleted})
	assert.Contains(t, deleted, id)

	_, err := s.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatsComputesSuccessRate(t *testing.T) {
	s := New()
	id1, _ := s.Create(newTestJob())
	id2, _ := s.Create(newTestJob())
	require.NoError(t, s.Transition(id1, []types.State{types.StatePending}, types.StateCompleted, nil, nil))
	require.NoError(t, s.Transition(id2, []types.State{types.StatePending}, types.StateFailed, nil, nil))

	st := s.Stats(time.Hour)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 0.5, st.SuccessRate)
}

func TestFileStoreSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")

	fs, err := NewFileStore(path)
	require.NoError(t, err)
	id, _ := fs.Create(newTestJob())
	require.NoError(t, fs.Snapshot())

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	j, err := reloaded.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "label.pdf", j.Filename)
}
