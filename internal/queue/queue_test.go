package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/docparse/internal/jobstore"
	"github.com/standardbeagle/docparse/internal/types"
)

func newQueue(t *testing.T, cfg Config) (*Queue, *jobstore.Store) {
	t.Helper()
	store := jobstore.New()
	return New(store, cfg), store
}

func TestEnqueueLeaseAckHappyPath(t *testing.T) {
	q, store := newQueue(t, Config{LeaseDuration: time.Minute, SweepInterval: time.Hour, MaxAttempts: 3})

	job := &types.Job{Filename: "x.pdf", ParsingType: types.ParsingAuto, Priority: types.PriorityNormal}
	id, err := store.Create(job)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(id, types.PriorityNormal, time.Now()))

	leased, ok, err := q.Lease("worker-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, leased)

	j, _ := store.Get(id)
	assert.Equal(t, types.StateLeased, j.State)
	assert.Equal(t, "worker-1", j.LeaseOwner)

	q.Ack(id)
	assert.Equal(t, 0, q.InFlight())
}

func TestLeaseOrdersByPriorityThenFIFO(t *testing.T) {
	q, store := newQueue(t, Config{LeaseDuration: time.Minute, SweepInterval: time.Hour, MaxAttempts: 3})

	low := &types.Job{Filename: "low.pdf", ParsingType: types.ParsingAuto, Priority: types.PriorityLow}
	high := &types.Job{Filename: "high.pdf", ParsingType: types.ParsingAuto, Priority: types.PriorityHigh}
	low2 := &types.Job{Filename: "low2.pdf", ParsingType: types.ParsingAuto, Priority: types.PriorityLow}
	lowID, _ := store.Create(low)
	highID, _ := store.Create(high)
	low2ID, _ := store.Create(low2)

	now := time.Now()
	require.NoError(t, q.Enqueue(lowID, types.PriorityLow, now))
	require.NoError(t, q.Enqueue(highID, types.PriorityHigh, now.Add(time.Millisecond)))
	require.NoError(t, q.Enqueue(low2ID, types.PriorityLow, now.Add(2*time.Millisecond)))

	first, _, err := q.Lease("w")
	require.NoError(t, err)
	assert.Equal(t, highID, first)

	second, _, err := q.Lease("w")
	require.NoError(t, err)
	assert.Equal(t, lowID, second)

	third, _, err := q.Lease("w")
	require.NoError(t, err)
	assert.Equal(t, low2ID, third)
}

func TestNackRequeuesUnderMaxAttempts(t *testing.T) {
	q, store := newQueue(t, Config{
		LeaseDuration: time.Minute, SweepInterval: 10 * time.Millisecond, MaxAttempts: 3,
		RetryBackoffBase: 5 * time.Millisecond, RetryBackoffMax: 5 * time.Millisecond,
	})

	id, _ := store.Create(&types.Job{Filename: "x.pdf", ParsingType: types.ParsingAuto, Priority: types.PriorityNormal})
	require.NoError(t, q.Enqueue(id, types.PriorityNormal, time.Now()))
	_, _, err := q.Lease("w")
	require.NoError(t, err)

	requeued, err := q.Nack(id)
	require.NoError(t, err)
	assert.True(t, requeued)

	j, _ := store.Get(id)
	assert.Equal(t, types.StateQueued, j.State)
	assert.Equal(t, 2, j.Attempts)

	// The job is held out of the ready set until its backoff elapses.
	assert.Equal(t, 0, q.Len())

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		q.StartSweeper(stop)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return q.Len() == 1
	}, time.Second, 5*time.Millisecond)

	close(stop)
	<-done
}

func TestSweeperReclaimsExpiredLease(t *testing.T) {
	defer goleak.VerifyNone(t)

	q, store := newQueue(t, Config{LeaseDuration: 10 * time.Millisecond, SweepInterval: 15 * time.Millisecond, MaxAttempts: 3})
	id, _ := store.Create(&types.Job{Filename: "x.pdf", ParsingType: types.ParsingAuto, Priority: types.PriorityNormal})
	require.NoError(t, q.Enqueue(id, types.PriorityNormal, time.Now()))
	_, _, err := q.Lease("w")
	require.NoError(t, err)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		q.StartSweeper(stop)
		close(done)
	}()

	require.Eventually(t, func() bool {
		j, _ := store.Get(id)
		return j.State == types.StateQueued
	}, time.Second, 5*time.Millisecond)

	close(stop)
	<-done
}

func TestSweeperFailsJobAfterMaxAttempts(t *testing.T) {
	q, store := newQueue(t, Config{LeaseDuration: 5 * time.Millisecond, SweepInterval: 5 * time.Millisecond, MaxAttempts: 1})
	id, _ := store.Create(&types.Job{Filename: "x.pdf", ParsingType: types.ParsingAuto, Priority: types.PriorityNormal})
	require.NoError(t, q.Enqueue(id, types.PriorityNormal, time.Now()))
	_, _, err := q.Lease("w")
	require.NoError(t, err)

	q.sweepExpired()
	time.Sleep(10 * time.Millisecond)
	q.sweepExpired()

	j, _ := store.Get(id)
	assert.Equal(t, types.StateFailed, j.State)
	require.NotNil(t, j.Error)
	assert.Equal(t, "exhausted_retries", j.Error.Kind)
}
