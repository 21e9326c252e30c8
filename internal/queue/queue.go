// Package queue implements the priority lease/ack/nack queue sitting in
// front of the worker pool: a heap ordered by (priority rank, created_at,
// job id), with leases that expire and get reclaimed by a sweeper.
package queue

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/standardbeagle/docparse/internal/jobstore"
	"github.com/standardbeagle/docparse/internal/types"
)

// Config controls lease duration, sweep cadence, and retry budget.
type Config struct {
	LeaseDuration time.Duration
	SweepInterval time.Duration
	MaxAttempts   int

	// RetryBackoffBase and RetryBackoffMax shape the delay a nacked job
	// waits before becoming ready again: min(base*2^(attempts-1), max).
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// retryBackoff computes the nack retry delay for the given attempts count.
func retryBackoff(base, max time.Duration, attempts int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempts; i++ {
		if d >= max {
			return max
		}
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

type entry struct {
	jobID     uuid.UUID
	priority  types.Priority
	createdAt time.Time
	index     int
}

// readyHeap orders entries by priority rank ascending, then createdAt
// ascending, then job id, giving a stable FIFO within a priority class.
type readyHeap []*entry

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].priority.Rank() != h[j].priority.Rank() {
		return h[i].priority.Rank() < h[j].priority.Rank()
	}
	if !h[i].createdAt.Equal(h[j].createdAt) {
		return h[i].createdAt.Before(h[j].createdAt)
	}
	return h[i].jobID.String() < h[j].jobID.String()
}
func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *readyHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *readyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// lease tracks an outstanding lease on a job held by owner until deadline.
type lease struct {
	owner    string
	deadline time.Time
}

// Queue pairs a ready-set heap with the job store's lifecycle transitions.
// The heap holds only ids; the job store remains the single source of
// truth for state.
type Queue struct {
	store  *jobstore.Store
	cfg    Config

	mu      sync.Mutex
	ready   readyHeap
	present map[uint64]bool // xxhash(jobID) dedupe guard against double-enqueue
	leases  map[uuid.UUID]*lease
	delayed map[uuid.UUID]time.Time // nacked jobs held out of ready until backoff elapses

	stopSweep chan struct{}
}

// New builds a Queue backed by store.
func New(store *jobstore.Store, cfg Config) *Queue {
	q := &Queue{
		store:   store,
		cfg:     cfg,
		present: make(map[uint64]bool),
		leases:  make(map[uuid.UUID]*lease),
		delayed: make(map[uuid.UUID]time.Time),
	}
	heap.Init(&q.ready)
	return q
}

func dedupeKey(id uuid.UUID) uint64 {
	return xxhash.Sum64(id[:])
}

// Enqueue transitions a pending job to queued and makes it visible to
// Lease. Double-enqueue of the same job id is a no-op.
func (q *Queue) Enqueue(jobID uuid.UUID, priority types.Priority, createdAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := dedupeKey(jobID)
	if q.present[key] {
		return nil
	}
	if err := q.store.Transition(jobID, []types.State{types.StatePending}, types.StateQueued, nil, nil); err != nil {
		return err
	}
	heap.Push(&q.ready, &entry{jobID: jobID, priority: priority, createdAt: createdAt})
	q.present[key] = true
	return nil
}

// Lease pops the highest-priority ready job, transitions it to leased,
// and records a lease owned by owner expiring after cfg.LeaseDuration.
// Returns (uuid.Nil, false, nil) when the queue is empty.
func (q *Queue) Lease(owner string) (uuid.UUID, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ready.Len() == 0 {
		return uuid.Nil, false, nil
	}
	e := heap.Pop(&q.ready).(*entry)
	delete(q.present, dedupeKey(e.jobID))

	deadline := time.Now().UTC().Add(q.cfg.LeaseDuration)
	err := q.store.Transition(e.jobID, []types.State{types.StateQueued}, types.StateLeased, nil, func(j *types.Job) {
		j.LeaseOwner = owner
		j.LeaseDeadline = &deadline
		j.Attempts++
	})
	if err != nil {
		return uuid.Nil, false, err
	}
	q.leases[e.jobID] = &lease{owner: owner, deadline: deadline}
	return e.jobID, true, nil
}

// Renew extends an outstanding lease, used by the dispatcher to keep a
// long-running job's lease alive.
func (q *Queue) Renew(jobID uuid.UUID, owner string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.leases[jobID]
	if !ok || l.owner != owner {
		return fmt.Errorf("queue: no lease held by %q for job %s", owner, jobID)
	}
	deadline := time.Now().UTC().Add(q.cfg.LeaseDuration)
	l.deadline = deadline
	return q.store.Transition(jobID, []types.State{types.StateLeased, types.StateRunning}, "", nil, func(j *types.Job) {
		j.LeaseDeadline = &deadline
	})
}

// Ack finalizes a job, clearing its lease. The caller has already written
// the job's terminal state (completed/failed/cancelled) via the store.
func (q *Queue) Ack(jobID uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.leases, jobID)
}

// Nack releases a failed attempt, incrementing attempts and holding the
// job out of the ready set until its backoff delay elapses, unless
// cfg.MaxAttempts has been exhausted. Returns (true, nil) if the job was
// requeued for retry, (false, nil) if attempts are exhausted and the
// caller must transition it to failed with KindExhaustedRetries, or a
// non-nil error if the lease/job state didn't allow either.
func (q *Queue) Nack(jobID uuid.UUID) (bool, error) {
	q.mu.Lock()
	_, held := q.leases[jobID]
	delete(q.leases, jobID)
	q.mu.Unlock()
	if !held {
		return false, fmt.Errorf("queue: nack on job %s with no outstanding lease", jobID)
	}

	j, err := q.store.Get(jobID)
	if err != nil {
		return false, err
	}
	if j.Attempts >= q.cfg.MaxAttempts {
		return false, nil
	}

	attempts := j.Attempts + 1
	if err := q.store.Transition(jobID, []types.State{types.StateLeased, types.StateRunning}, types.StateQueued, nil, func(job *types.Job) {
		job.Attempts = attempts
	}); err != nil {
		return false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed[jobID] = time.Now().UTC().Add(retryBackoff(q.cfg.RetryBackoffBase, q.cfg.RetryBackoffMax, attempts))
	return true, nil
}

// Release clears jobID's lease without touching its state, for callers
// that have already written a terminal state themselves (the parsing
// pipeline writes failed or cancelled itself for non-retryable errors, so
// the dispatcher only needs to drop the lease bookkeeping; retryable
// errors go through Nack instead).
func (q *Queue) Release(jobID uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.leases, jobID)
}

// Len reports the number of jobs currently ready for lease.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready.Len()
}

// InFlight reports the number of outstanding leases.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.leases)
}

// StartSweeper runs until stop is closed, periodically reclaiming
// expired leases: requeuing under max_attempts, failing with
// exhausted_retries once attempts run out.
func (q *Queue) StartSweeper(stop <-chan struct{}) {
	ticker := time.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			q.sweepExpired()
		}
	}
}

func (q *Queue) sweepExpired() {
	now := time.Now().UTC()

	q.mu.Lock()
	var expired []uuid.UUID
	for id, l := range q.leases {
		if now.After(l.deadline) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(q.leases, id)
	}
	q.mu.Unlock()

	for _, id := range expired {
		q.reclaimExpired(id)
	}
	q.promoteDelayed(now)
}

// reclaimExpired transitions an expired lease back to queued, incrementing
// attempts the same way a sweep-driven retry is meant to (spec-named
// lease-expiry reclaim, distinct from Nack's backoff-delayed retry: a
// vanished worker's job is ready for the very next lease).
func (q *Queue) reclaimExpired(jobID uuid.UUID) {
	j, err := q.store.Get(jobID)
	if err != nil {
		return
	}
	attempts := j.Attempts + 1
	if j.Attempts >= q.cfg.MaxAttempts {
		_ = q.store.Transition(jobID, []types.State{types.StateLeased, types.StateRunning}, types.StateFailed, nil, func(job *types.Job) {
			job.Error = &types.JobError{Kind: "exhausted_retries", Message: "lease expired after max_attempts reached"}
		})
		return
	}
	if err := q.store.Transition(jobID, []types.State{types.StateLeased, types.StateRunning}, types.StateQueued, nil, func(job *types.Job) {
		job.Attempts = attempts
	}); err != nil {
		return
	}

	q.mu.Lock()
	key := dedupeKey(jobID)
	if !q.present[key] {
		heap.Push(&q.ready, &entry{jobID: jobID, priority: j.Priority, createdAt: j.CreatedAt})
		q.present[key] = true
	}
	q.mu.Unlock()
}

// promoteDelayed moves nacked jobs whose backoff has elapsed into the
// ready set, re-reading the job so priority/created_at reflect the store.
func (q *Queue) promoteDelayed(now time.Time) {
	q.mu.Lock()
	var ready []uuid.UUID
	for id, at := range q.delayed {
		if !now.Before(at) {
			ready = append(ready, id)
			delete(q.delayed, id)
		}
	}
	q.mu.Unlock()

	for _, id := range ready {
		j, err := q.store.Get(id)
		if err != nil || j.State != types.StateQueued {
			continue
		}
		q.mu.Lock()
		key := dedupeKey(id)
		if !q.present[key] {
			heap.Push(&q.ready, &entry{jobID: id, priority: j.Priority, createdAt: j.CreatedAt})
			q.present[key] = true
		}
		q.mu.Unlock()
	}
}
