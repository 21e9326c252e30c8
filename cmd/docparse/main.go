// Command docparse runs the document-parsing service described by the
// project's API surface: upload ingestion (sync, async, batch, and a
// watched drop directory), a priority lease/ack queue, a worker pool
// running the extraction pipeline, webhook delivery on completion, and a
// retention sweep, all fronted by an HTTP API.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/docparse/internal/api"
	"github.com/standardbeagle/docparse/internal/blob"
	"github.com/standardbeagle/docparse/internal/callback"
	"github.com/standardbeagle/docparse/internal/cleanup"
	"github.com/standardbeagle/docparse/internal/config"
	"github.com/standardbeagle/docparse/internal/dispatcher"
	"github.com/standardbeagle/docparse/internal/ingest"
	"github.com/standardbeagle/docparse/internal/jobstore"
	"github.com/standardbeagle/docparse/internal/ocr"
	"github.com/standardbeagle/docparse/internal/parsers"
	"github.com/standardbeagle/docparse/internal/pipeline"
	"github.com/standardbeagle/docparse/internal/queue"
	"github.com/standardbeagle/docparse/internal/registry"
	"github.com/standardbeagle/docparse/internal/security"
	"github.com/standardbeagle/docparse/internal/types"
	"github.com/standardbeagle/docparse/internal/version"
)

const jobStoreSnapshotInterval = 10 * time.Second

// services bundles everything built from config that the serve/worker
// commands share; cleanup needs only a slice of it.
type services struct {
	cfg      *config.Config
	store    *jobstore.FileStore
	blobs    *blob.Store
	queue    *queue.Queue
	pipeline *pipeline.Pipeline
	pool     *dispatcher.Pool
	sweeper  *cleanup.Sweeper
}

func buildServices(cfg *config.Config, stateDir string) (*services, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", stateDir, err)
	}

	store, err := jobstore.NewFileStore(filepath.Join(stateDir, "jobs.json"))
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	blobs, err := blob.New(cfg.Blob.RootDir)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	q := queue.New(store.Store, queue.Config{
		LeaseDuration:    cfg.Queue.LeaseDuration,
		SweepInterval:    cfg.Queue.SweepInterval,
		MaxAttempts:      cfg.Queue.MaxAttempts,
		RetryBackoffBase: cfg.Queue.RetryBackoffBase,
		RetryBackoffMax:  cfg.Queue.RetryBackoffMax,
	})

	vocab, err := config.LoadVocabulary("vocabulary.toml")
	if err != nil {
		return nil, fmt.Errorf("load nutrient vocabulary: %w", err)
	}

	reg := registry.New()
	reg.Register(types.ParsingNutritionLabel, parsers.NewNutritionExtractor(vocab))
	reg.Register(types.ParsingRecipe, parsers.NewRecipeExtractor())
	reg.Register(types.ParsingDietGuide, parsers.NewDietGuideExtractor())
	reg.Register(types.ParsingUnknown, parsers.NewUnknownExtractor())

	var engine ocr.Engine = ocr.NewStub()
	pl := pipeline.New(store.Store, blobs, reg, engine)

	deliverer := callback.New(callback.Config{
		MaxAttempts: cfg.Callback.MaxAttempts,
		BackoffBase: cfg.Callback.BackoffBase,
	})
	pool := dispatcher.New(q, store.Store, pl, deliverer, cfg.Dispatcher.Concurrency, cfg.Queue.LeaseDuration)

	sweeper := cleanup.New(store.Store, blobs, cfg.Cleanup.RetentionDays)

	return &services{
		cfg:      cfg,
		store:    store,
		blobs:    blobs,
		queue:    q,
		pipeline: pl,
		pool:     pool,
		sweeper:  sweeper,
	}, nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String("config"))
}

func main() {
	app := &cli.App{
		Name:    "docparse",
		Usage:   "document ingestion and parsing service",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   ".docparse.kdl",
			},
			&cli.StringFlag{
				Name:  "state-dir",
				Usage: "Directory for job store snapshots and the batch-drop inbox",
				Value: "state",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, worker pool, ingestion watcher, and retention sweep",
				Action: serveCommand,
			},
			{
				Name:  "worker",
				Usage: "Run only the worker pool and retention sweep, without the HTTP API",
				Action: workerCommand,
			},
			{
				Name:  "cleanup",
				Usage: "Run a single retention sweep and exit",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "days",
						Usage: "Override the configured retention window in days",
						Value: 0,
					},
				},
				Action: cleanupCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "docparse: %v\n", err)
		os.Exit(1)
	}
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := buildServices(cfg, c.String("state-dir"))
	if err != nil {
		return err
	}

	handler := api.NewHandler(svc.store.Store, svc.queue, svc.blobs, svc.pipeline, cfg)

	validator := security.NewFileValidator(cfg.Validator.MaxFileSize, cfg.Validator.MaxSyncFileSize)
	watcher, err := ingest.New(filepath.Join(c.String("state-dir"), "inbox"), svc.store.Store, svc.queue, svc.blobs, validator)
	if err != nil {
		return fmt.Errorf("start batch-drop watcher: %w", err)
	}
	watcher.Start()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stopSweep := make(chan struct{})
	go svc.sweeper.RunPeriodic(stopSweep, 6*time.Hour)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Printf("docparse listening on %s", httpServer.Addr)
		serverErr <- httpServer.ListenAndServe()
	}()

	go snapshotPeriodically(ctx, svc.store)
	go svc.pool.Run(ctx)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			cancel()
			shutdown(svc, watcher, stopSweep)
			return fmt.Errorf("http server error: %w", err)
		}
	case <-ctx.Done():
		log.Printf("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	shutdown(svc, watcher, stopSweep)
	return nil
}

func workerCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := buildServices(cfg, c.String("state-dir"))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stopSweep := make(chan struct{})
	go svc.sweeper.RunPeriodic(stopSweep, 6*time.Hour)
	go snapshotPeriodically(ctx, svc.store)

	svc.pool.Run(ctx)
	close(stopSweep)
	return svc.store.Snapshot()
}

func cleanupCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := buildServices(cfg, c.String("state-dir"))
	if err != nil {
		return err
	}

	days := c.Int("days")
	if days <= 0 {
		days = cfg.Cleanup.RetentionDays
	}
	res := svc.sweeper.Run(days)
	fmt.Printf("swept %d jobs, %d blobs\n", res.JobsDeleted, res.BlobsDeleted)
	return svc.store.Snapshot()
}

func snapshotPeriodically(ctx context.Context, store *jobstore.FileStore) {
	ticker := time.NewTicker(jobStoreSnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = store.Snapshot()
			return
		case <-ticker.C:
			if err := store.Snapshot(); err != nil {
				log.Printf("job store snapshot failed: %v", err)
			}
		}
	}
}

func shutdown(svc *services, watcher *ingest.Watcher, stopSweep chan struct{}) {
	close(stopSweep)
	if err := watcher.Stop(); err != nil {
		log.Printf("watcher shutdown error: %v", err)
	}
	if err := svc.store.Snapshot(); err != nil {
		log.Printf("final job store snapshot failed: %v", err)
	}
}
