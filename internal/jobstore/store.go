// Package jobstore implements the job/batch system of record: an
// in-memory index with optimistic-lock compare-and-swap transitions,
// multi-key indexing, and stats/cleanup sweeps. A FileStore wraps Store
// with periodic JSON snapshotting for restart survival.
package jobstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/standardbeagle/docparse/internal/types"
)

// ErrNotFound is returned when a job id is not present in the store.
var ErrNotFound = fmt.Errorf("jobstore: job not found")

// ErrConflict is returned by Transition when the job's current state is
// not one of the caller's expected from_states, or its updated_at does
// not match the caller's expected value.
var ErrConflict = fmt.Errorf("jobstore: optimistic lock conflict")

// Filter narrows List results.
type Filter struct {
	State       types.State
	ParsingType types.ParsingType
	BatchID     *uuid.UUID
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Stats summarizes job outcomes over a window.
type Stats struct {
	ByState     map[types.State]int
	Total       int
	SuccessRate float64
	AvgDuration time.Duration
}

// Store is a mutex-guarded, process-local job index. Every exported
// method is atomic and serializable with respect to a single job id;
// list/stats operations take a consistent snapshot under the same lock.
type Store struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*types.Job

	byBatch map[uuid.UUID][]uuid.UUID
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs:    make(map[uuid.UUID]*types.Job),
		byBatch: make(map[uuid.UUID][]uuid.UUID),
	}
}

// Create inserts job in state pending and returns its id. job.ID is
// generated if unset.
func (s *Store) Create(job *types.Job) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = types.NewID()
	}
	now := time.Now().UTC()
	job.State = types.StatePending
	job.CreatedAt = now
	job.UpdatedAt = now

	stored := job.Clone()
	s.jobs[stored.ID] = stored
	if stored.BatchID != nil {
		s.byBatch[*stored.BatchID] = append(s.byBatch[*stored.BatchID], stored.ID)
	}
	return stored.ID, nil
}

// Get returns a deep copy of the job, so callers can't mutate store state
// without going through Transition/UpdateProgress.
func (s *Store) Get(id uuid.UUID) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

// Transition performs a compare-and-swap: it only applies if the job's
// current state is in fromStates and, when expectedUpdatedAt is non-nil,
// the job's UpdatedAt matches it exactly. patch is applied to the cloned
// job before it is written back. Passing "" for to leaves the state
// unchanged, letting callers CAS-guard a field-only patch (e.g. lease
// renewal) without a state transition.
func (s *Store) Transition(id uuid.UUID, fromStates []types.State, to types.State, expectedUpdatedAt *time.Time, patch func(*types.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !stateIn(j.State, fromStates) {
		return ErrConflict
	}
	if expectedUpdatedAt != nil && !j.UpdatedAt.Equal(*expectedUpdatedAt) {
		return ErrConflict
	}

	next := j.Clone()
	if to != "" {
		next.State = to
	}
	now := time.Now().UTC()
	switch to {
	case types.StateRunning:
		if next.StartedAt == nil {
			next.StartedAt = &now
		}
	case types.StateCompleted, types.StateFailed, types.StateCancelled:
		next.FinishedAt = &now
	}
	if patch != nil {
		patch(next)
	}
	next.UpdatedAt = now
	s.jobs[id] = next
	return nil
}

// UpdateProgress writes stage/percent, clamping percent to be
// non-decreasing, and is only accepted while the job is leased or
// running.
func (s *Store) UpdateProgress(id uuid.UUID, stage string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.State != types.StateLeased && j.State != types.StateRunning {
		return ErrConflict
	}
	if percent < j.Progress {
		percent = j.Progress
	}
	next := j.Clone()
	next.Stage = stage
	next.Progress = percent
	next.UpdatedAt = time.Now().UTC()
	s.jobs[id] = next
	return nil
}

// List returns jobs matching filter ordered by CreatedAt descending,
// paginated by (page, size), plus the total match count.
func (s *Store) List(filter Filter, page, size int) ([]*types.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*types.Job
	for _, j := range s.jobs {
		if !matchesFilter(j, filter) {
			continue
		}
		matched = append(matched, j.Clone())
	}
	sort.Slice(matched, func(i, k int) bool {
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})

	total := len(matched)
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = total
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// Delete removes job id from any state and detaches it from its batch
// index. Deletion is idempotent.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	delete(s.jobs, id)
	if j.BatchID != nil {
		ids := s.byBatch[*j.BatchID]
		for i, bid := range ids {
			if bid == id {
				s.byBatch[*j.BatchID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
	return nil
}

// Stats summarizes jobs created within window of now.
func (s *Store) Stats(window time.Duration) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-window)
	st := Stats{ByState: make(map[types.State]int)}

	var durationSum time.Duration
	var durationCount int
	var succeeded, terminal int

	for _, j := range s.jobs {
		if j.CreatedAt.Before(cutoff) {
			continue
		}
		st.ByState[j.State]++
		st.Total++
		if j.State.Terminal() {
			terminal++
			if j.State == types.StateCompleted {
				succeeded++
			}
			if j.StartedAt != nil && j.FinishedAt != nil {
				durationSum += j.FinishedAt.Sub(*j.StartedAt)
				durationCount++
			}
		}
	}
	if terminal > 0 {
		st.SuccessRate = float64(succeeded) / float64(terminal)
	}
	if durationCount > 0 {
		st.AvgDuration = durationSum / time.Duration(durationCount)
	}
	return st
}

// Cleanup bulk-deletes terminal jobs older than cutoff whose state is in
// states, returning the deleted ids so callers can also reclaim blobs.
func (s *Store) Cleanup(olderThan time.Time, states []types.State) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []uuid.UUID
	for id, j := range s.jobs {
		if !j.State.Terminal() || !stateIn(j.State, states) {
			continue
		}
		if j.UpdatedAt.After(olderThan) {
			continue
		}
		deleted = append(deleted, id)
		delete(s.jobs, id)
		if j.BatchID != nil {
			ids := s.byBatch[*j.BatchID]
			for i, bid := range ids {
				if bid == id {
					s.byBatch[*j.BatchID] = append(ids[:i], ids[i+1:]...)
					break
				}
			}
		}
	}
	return deleted
}

func stateIn(s types.State, states []types.State) bool {
	for _, st := range states {
		if s == st {
			return true
		}
	}
	return false
}

func matchesFilter(j *types.Job, f Filter) bool {
	if f.State != "" && j.State != f.State {
		return false
	}
	if f.ParsingType != "" && j.ParsingType != f.ParsingType {
		return false
	}
	if f.BatchID != nil && (j.BatchID == nil || *j.BatchID != *f.BatchID) {
		return false
	}
	if f.CreatedFrom != nil && j.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && j.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}
