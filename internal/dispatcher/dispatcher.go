// Package dispatcher runs the fixed-size worker pool that leases jobs
// from the queue, renews their lease while the pipeline runs, and acks
// or nacks on completion. Shutdown is cooperative: workers check for
// cancellation at pipeline stage boundaries rather than being killed
// mid-stage.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/standardbeagle/docparse/internal/callback"
	docerrors "github.com/standardbeagle/docparse/internal/errors"
	"github.com/standardbeagle/docparse/internal/jobstore"
	"github.com/standardbeagle/docparse/internal/metrics"
	"github.com/standardbeagle/docparse/internal/queue"
	"github.com/standardbeagle/docparse/internal/types"
)

// maxBackoff bounds the jittered retry-empty-queue backoff.
const maxBackoff = 2 * time.Second

// Runner executes the parsing pipeline for a single job, observing
// ctx.Done() at stage boundaries for cooperative cancellation.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID) error
}

// Pool is a fixed set of worker goroutines pulling from a Queue.
type Pool struct {
	queue       *queue.Queue
	store       *jobstore.Store
	runner      Runner
	deliverer   *callback.Deliverer
	concurrency int
	leaseDur    time.Duration
}

// New builds a worker pool of the given concurrency. deliverer may be nil,
// in which case completed/failed jobs with a callback_url are skipped
// rather than delivered.
func New(q *queue.Queue, store *jobstore.Store, runner Runner, deliverer *callback.Deliverer, concurrency int, leaseDuration time.Duration) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{queue: q, store: store, runner: runner, deliverer: deliverer, concurrency: concurrency, leaseDur: leaseDuration}
}

// Run blocks, running concurrency worker loops, until ctx is cancelled.
// It returns once every worker has exited.
func (p *Pool) Run(ctx context.Context) {
	done := make(chan struct{}, p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		owner := workerName(i)
		go func() {
			p.workerLoop(ctx, owner)
			done <- struct{}{}
		}()
	}
	for i := 0; i < p.concurrency; i++ {
		<-done
	}
}

func workerName(i int) string {
	return fmt.Sprintf("worker-%d-%s", i, uuid.New().String()[:8])
}

func (p *Pool) workerLoop(ctx context.Context, owner string) {
	backoff := 10 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, ok, err := p.queue.Lease(owner)
		if err != nil || !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(backoff)):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = 10 * time.Millisecond

		metrics.Get().JobsRunning.Inc()
		p.runJob(ctx, owner, jobID)
		metrics.Get().JobsRunning.Dec()
	}
}

func (p *Pool) runJob(ctx context.Context, owner string, jobID uuid.UUID) {
	if err := p.store.Transition(jobID, []types.State{types.StateLeased}, types.StateRunning, nil, nil); err != nil {
		_, _ = p.queue.Nack(jobID)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	renewStop := make(chan struct{})
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		p.renewLoop(runCtx, owner, jobID, renewStop)
	}()

	err := p.runner.Run(runCtx, jobID)

	close(renewStop)
	<-renewDone

	if err != nil {
		var derr *docerrors.Error
		if errors.As(err, &derr) && derr.Retryable() {
			requeued, nerr := p.queue.Nack(jobID)
			if nerr != nil {
				log.Printf("[dispatcher] nack failed for job %s: %v", jobID, nerr)
			}
			if !requeued {
				_ = p.store.Transition(jobID, []types.State{types.StateLeased, types.StateRunning}, types.StateFailed, nil, func(j *types.Job) {
					j.Error = &types.JobError{Kind: docerrors.KindExhaustedRetries, Message: derr.Error(), Stage: derr.Stage}
				})
				metrics.Get().JobsFailed.Inc()
				p.notifyCallback(jobID)
			}
			return
		}

		// The pipeline (or runner) already wrote its own terminal state —
		// failed or cancelled — before returning; the dispatcher's job
		// here is only to drop the lease bookkeeping and report the
		// outcome it didn't itself decide.
		p.queue.Release(jobID)
		if job, gerr := p.store.Get(jobID); gerr != nil || job.State != types.StateCancelled {
			metrics.Get().JobsFailed.Inc()
		}
		p.notifyCallback(jobID)
		return
	}
	p.queue.Ack(jobID)
	metrics.Get().JobsCompleted.Inc()
	p.notifyCallback(jobID)
}

// notifyCallback fires the job's callback_url, if any, in a detached
// goroutine so a slow or unreachable endpoint never holds up the worker
// that just freed itself for the next lease.
func (p *Pool) notifyCallback(jobID uuid.UUID) {
	if p.deliverer == nil {
		return
	}
	job, err := p.store.Get(jobID)
	if err != nil || job.CallbackURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.deliverer.Deliver(ctx, job.CallbackURL, job); err != nil {
			log.Printf("[dispatcher] callback delivery failed for job %s: %v", jobID, err)
		}
	}()
}

func (p *Pool) renewLoop(ctx context.Context, owner string, jobID uuid.UUID, stop <-chan struct{}) {
	interval := p.leaseDur / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			_ = p.queue.Renew(jobID, owner)
		}
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return base
	}
	delta := time.Duration(rand.Int63n(int64(base) / 2))
	return base/2 + delta
}
