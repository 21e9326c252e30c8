// Package ingest implements the batch-drop ingestion path: a watched
// directory where operators can place PDFs directly on disk as an
// alternative to the multipart upload API. Every file that settles in
// the directory is validated, stored, and enqueued exactly like a
// POST /parse/async call, then removed from the drop directory.
package ingest

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/docparse/internal/blob"
	"github.com/standardbeagle/docparse/internal/jobstore"
	"github.com/standardbeagle/docparse/internal/metrics"
	"github.com/standardbeagle/docparse/internal/queue"
	"github.com/standardbeagle/docparse/internal/security"
	"github.com/standardbeagle/docparse/internal/types"
)

// settleDelay gives a writer time to finish before the watcher reads a
// newly created file, avoiding a read of a half-written upload.
const settleDelay = 250 * time.Millisecond

// Watcher monitors a single flat directory (non-recursive: this is a drop
// folder, not a source tree, unlike the recursive watch the teacher runs
// over a repository) and submits every settled .pdf it finds.
type Watcher struct {
	dir      string
	store    *jobstore.Store
	queue    *queue.Queue
	blobs    *blob.Store
	validate *security.FileValidator

	defaultParsingType types.ParsingType
	defaultPriority    types.Priority

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New builds a Watcher over dir. dir is created if it does not exist.
func New(dir string, store *jobstore.Store, q *queue.Queue, blobs *blob.Store, validate *security.FileValidator) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create watch dir %s: %w", dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{
		dir:                dir,
		store:              store,
		queue:              q,
		blobs:              blobs,
		validate:           validate,
		defaultParsingType: types.ParsingAuto,
		defaultPriority:    types.PriorityNormal,
		watcher:            fw,
		done:               make(chan struct{}),
	}, nil
}

// Start processes events until Stop is called.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop closes the underlying fsnotify watcher and waits for the event
// loop to exit.
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".pdf") {
				continue
			}
			time.Sleep(settleDelay)
			if err := w.submit(ev.Name); err != nil {
				log.Printf("[ingest] failed to submit %s: %v", ev.Name, err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[ingest] watcher error: %v", err)
		}
	}
}

func (w *Watcher) submit(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	filename := filepath.Base(path)

	info, verr := w.validate.Validate(data, filename, false)
	if verr != nil {
		return fmt.Errorf("validate %s: %w", path, verr)
	}

	jobID := types.NewID()
	safeName, verr := security.SanitizeFilename(filename, info.Hash)
	if verr != nil {
		return fmt.Errorf("sanitize filename for %s: %w", path, verr)
	}
	handle, err := w.blobs.Put(jobID.String(), safeName, data)
	if err != nil {
		return fmt.Errorf("persist %s: %w", path, err)
	}

	job := &types.Job{
		ID:          jobID,
		Filename:    safeName,
		SizeBytes:   info.Size,
		ContentHash: handle.Hash,
		BlobHandle:  handle.Path,
		ParsingType: w.defaultParsingType,
		Priority:    w.defaultPriority,
	}
	if _, err := w.store.Create(job); err != nil {
		return fmt.Errorf("create job for %s: %w", path, err)
	}
	metrics.Get().JobsSubmitted.Inc()

	if err := w.queue.Enqueue(jobID, w.defaultPriority, time.Now().UTC()); err != nil {
		return fmt.Errorf("enqueue job for %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil {
		log.Printf("[ingest] submitted %s as job %s but failed to remove drop file: %v", path, jobID, err)
	}
	return nil
}
