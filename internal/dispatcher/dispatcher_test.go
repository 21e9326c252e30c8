package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	docerrors "github.com/standardbeagle/docparse/internal/errors"
	"github.com/standardbeagle/docparse/internal/jobstore"
	"github.com/standardbeagle/docparse/internal/queue"
	"github.com/standardbeagle/docparse/internal/types"
)

type fakeRunner struct {
	calls   int32
	fail    bool
	onRun   func(jobID uuid.UUID)
}

func (f *fakeRunner) Run(ctx context.Context, jobID uuid.UUID) error {
	atomic.AddInt32(&f.calls, 1)
	if f.onRun != nil {
		f.onRun(jobID)
	}
	if f.fail {
		return errors.New("boom")
	}
	return nil
}

func TestPoolProcessesQueuedJobToCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := jobstore.New()
	q := queue.New(store, queue.Config{LeaseDuration: time.Second, SweepInterval: time.Hour, MaxAttempts: 3})
	id, _ := store.Create(&types.Job{Filename: "x.pdf", ParsingType: types.ParsingAuto, Priority: types.PriorityNormal})
	require.NoError(t, q.Enqueue(id, types.PriorityNormal, time.Now()))

	runner := &fakeRunner{
		onRun: func(jobID uuid.UUID) {
			_ = store.Transition(jobID, []types.State{types.StateRunning}, types.StateCompleted, nil, nil)
		},
	}
	pool := New(q, store, runner, nil, 2, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(doneCh)
	}()

	require.Eventually(t, func() bool {
		j, err := store.Get(id)
		return err == nil && j.State == types.StateCompleted
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-doneCh

	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.calls))
}

func TestPoolReleasesLeaseAndReportsFailureWhenRunnerErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := jobstore.New()
	q := queue.New(store, queue.Config{LeaseDuration: time.Second, SweepInterval: time.Hour, MaxAttempts: 3})
	id, _ := store.Create(&types.Job{Filename: "x.pdf", ParsingType: types.ParsingAuto, Priority: types.PriorityNormal})
	require.NoError(t, q.Enqueue(id, types.PriorityNormal, time.Now()))

	runner := &fakeRunner{
		fail: true,
		onRun: func(jobID uuid.UUID) {
			_ = store.Transition(jobID, []types.State{types.StateRunning}, types.StateFailed, nil, func(j *types.Job) {
				j.Error = &types.JobError{Kind: "parse_error", Message: "boom"}
			})
		},
	}
	pool := New(q, store, runner, nil, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(doneCh)
	}()

	require.Eventually(t, func() bool {
		j, err := store.Get(id)
		return err == nil && j.State == types.StateFailed
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-doneCh
}

// TestPoolNacksRetryableFailureInsteadOfFailing exercises Finding 1's
// fix: a transient stage error (blob_io, store_unavailable, ocr_transient)
// must come back to queued for retry, not straight to failed.
func TestPoolNacksRetryableFailureInsteadOfFailing(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := jobstore.New()
	q := queue.New(store, queue.Config{
		LeaseDuration: time.Second, SweepInterval: time.Hour, MaxAttempts: 3,
		RetryBackoffBase: time.Millisecond, RetryBackoffMax: time.Millisecond,
	})
	id, _ := store.Create(&types.Job{Filename: "x.pdf", ParsingType: types.ParsingAuto, Priority: types.PriorityNormal})
	require.NoError(t, q.Enqueue(id, types.PriorityNormal, time.Now()))

	runner := &fakeRunner{fail: true}
	pool := New(q, store, &retryableRunner{runner}, nil, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(doneCh)
	}()

	require.Eventually(t, func() bool {
		j, err := store.Get(id)
		return err == nil && j.State == types.StateQueued && j.Attempts == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-doneCh
}

// retryableRunner wraps fakeRunner so its error satisfies *docerrors.Error
// with a transient kind, without changing fakeRunner's stdlib-error shape
// used by the terminal-failure test above.
type retryableRunner struct {
	*fakeRunner
}

func (r *retryableRunner) Run(ctx context.Context, jobID uuid.UUID) error {
	if err := r.fakeRunner.Run(ctx, jobID); err != nil {
		return docerrors.Wrap(docerrors.KindBlobIO, err).WithStage("extract_basic_info")
	}
	return nil
}
