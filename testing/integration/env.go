// Package integration provides a real, in-process service stack for
// end-to-end tests: an isolated temp directory, a full jobstore/blob/queue/
// pipeline/dispatcher wiring, and the HTTP handler in front of it, the way
// the corpus's own isolated test environments give each test a disposable
// sandbox instead of mocking the pieces individually.
package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/docparse/internal/api"
	"github.com/standardbeagle/docparse/internal/blob"
	"github.com/standardbeagle/docparse/internal/callback"
	"github.com/standardbeagle/docparse/internal/config"
	"github.com/standardbeagle/docparse/internal/dispatcher"
	"github.com/standardbeagle/docparse/internal/jobstore"
	"github.com/standardbeagle/docparse/internal/ocr"
	"github.com/standardbeagle/docparse/internal/parsers"
	"github.com/standardbeagle/docparse/internal/pipeline"
	"github.com/standardbeagle/docparse/internal/queue"
	"github.com/standardbeagle/docparse/internal/registry"
	"github.com/standardbeagle/docparse/internal/types"
)

// Env is a full, disposable service stack rooted in a t.TempDir(), wired
// the same way cmd/docparse wires production, minus the HTTP listener.
type Env struct {
	T        *testing.T
	Config   *config.Config
	Store    *jobstore.Store
	Blobs    *blob.Store
	Queue    *queue.Queue
	Pipeline *pipeline.Pipeline
	Pool     *dispatcher.Pool
	Handler  *api.Handler

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an Env with fast lease/sweep timings suitable for tests, and
// starts its worker pool in the background. Callers must call Close.
func New(t *testing.T) *Env {
	t.Helper()

	cfg := config.Default()
	cfg.Blob.RootDir = filepath.Join(t.TempDir(), "blobs")
	cfg.Queue.LeaseDuration = 200 * time.Millisecond
	cfg.Queue.SweepInterval = 50 * time.Millisecond
	cfg.Queue.RetryBackoffBase = 10 * time.Millisecond
	cfg.Queue.RetryBackoffMax = 50 * time.Millisecond
	cfg.API.SyncDeadline = 5 * time.Second

	store := jobstore.New()
	blobs, err := blob.New(cfg.Blob.RootDir)
	require.NoError(t, err)

	q := queue.New(store, queue.Config{
		LeaseDuration:    cfg.Queue.LeaseDuration,
		SweepInterval:    cfg.Queue.SweepInterval,
		MaxAttempts:      cfg.Queue.MaxAttempts,
		RetryBackoffBase: cfg.Queue.RetryBackoffBase,
		RetryBackoffMax:  cfg.Queue.RetryBackoffMax,
	})

	reg := registry.New()
	reg.Register(types.ParsingNutritionLabel, parsers.NewNutritionExtractor(config.DefaultVocabulary()))
	reg.Register(types.ParsingRecipe, parsers.NewRecipeExtractor())
	reg.Register(types.ParsingDietGuide, parsers.NewDietGuideExtractor())
	reg.Register(types.ParsingUnknown, parsers.NewUnknownExtractor())

	pl := pipeline.New(store, blobs, reg, ocr.NewStub())
	deliverer := callback.New(callback.Config{MaxAttempts: cfg.Callback.MaxAttempts, BackoffBase: cfg.Callback.BackoffBase})
	pool := dispatcher.New(q, store, pl, deliverer, cfg.Dispatcher.Concurrency, cfg.Queue.LeaseDuration)

	handler := api.NewHandler(store, q, blobs, pl, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	env := &Env{
		T: t, Config: cfg, Store: store, Blobs: blobs, Queue: q,
		Pipeline: pl, Pool: pool, Handler: handler,
		cancel: cancel, done: done,
	}
	t.Cleanup(env.Close)
	return env
}

// Close stops the worker pool and waits for it to exit.
func (e *Env) Close() {
	e.cancel()
	<-e.done
}
