// Package pipeline orchestrates the seven ordered extraction stages that
// turn a stored PDF blob into a committed Result: basic info, type
// detection, text extraction, OCR fallback, structured extraction,
// quality scoring, and commit. Progress is coalesced to at most one job
// store write per 500ms per job, adapted from the corpus's
// sharded-flush progress-tracking idiom to a single-timer-per-job shape.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/standardbeagle/docparse/internal/blob"
	docerrors "github.com/standardbeagle/docparse/internal/errors"
	"github.com/standardbeagle/docparse/internal/jobstore"
	"github.com/standardbeagle/docparse/internal/metrics"
	"github.com/standardbeagle/docparse/internal/ocr"
	"github.com/standardbeagle/docparse/internal/parsers"
	"github.com/standardbeagle/docparse/internal/registry"
	"github.com/standardbeagle/docparse/internal/types"
)

// coalesceWindow bounds how often a single job's progress is flushed to
// the job store.
const coalesceWindow = 500 * time.Millisecond

// ocrDensityThreshold is the average chars/page below which OCR fallback
// is attempted.
const ocrDensityThreshold = 40

// Pipeline wires the blob store, parser registry, and OCR engine behind
// the seven-stage extraction sequence.
type Pipeline struct {
	store *jobstore.Store
	blobs *blob.Store
	reg   *registry.Registry
	ocr   ocr.Engine
}

// New builds a Pipeline.
func New(store *jobstore.Store, blobs *blob.Store, reg *registry.Registry, engine ocr.Engine) *Pipeline {
	if engine == nil {
		engine = ocr.NewStub()
	}
	return &Pipeline{store: store, blobs: blobs, reg: reg, ocr: engine}
}

// progressSink coalesces (stage, percent) notifications to at most one
// job store write per coalesceWindow, always flushing the final call.
type progressSink struct {
	store      *jobstore.Store
	jobID      uuid.UUID
	lastFlush  atomic.Int64
}

func newProgressSink(store *jobstore.Store, jobID uuid.UUID) *progressSink {
	return &progressSink{store: store, jobID: jobID}
}

func (p *progressSink) notify(stage string, percent int, force bool) {
	now := time.Now().UnixNano()
	last := p.lastFlush.Load()
	if !force && now-last < int64(coalesceWindow) {
		return
	}
	if !p.lastFlush.CompareAndSwap(last, now) && !force {
		return
	}
	_ = p.store.UpdateProgress(p.jobID, stage, percent)
}

// Run executes every stage for jobID in order, observing ctx.Done() and
// the job's cancel-request flag at each stage boundary. On success it
// commits the Result and transitions the job to completed. On failure,
// the terminal write depends on the error's class: cancelled jobs
// ack-write cancelled, transient failures write nothing (the dispatcher
// nacks and retries), everything else records {kind, message, stage} and
// transitions to failed.
func (p *Pipeline) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := p.store.Get(jobID)
	if err != nil {
		return err
	}
	sink := newProgressSink(p.store, jobID)

	start := time.Now()
	result, pipelineErr := p.runStages(ctx, job, sink)
	metrics.Get().ParseDuration.WithLabelValues(string(job.ParsingType)).Observe(time.Since(start).Seconds())
	if pipelineErr != nil {
		p.fail(jobID, pipelineErr)
		return pipelineErr
	}

	sink.notify("commit", 100, true)
	return p.store.Transition(jobID, []types.State{types.StateRunning}, types.StateCompleted, nil, func(j *types.Job) {
		j.Result = result
		j.Progress = 100
		j.Stage = "commit"
	})
}

func (p *Pipeline) runStages(ctx context.Context, job *types.Job, sink *progressSink) (*types.Result, *docerrors.Error) {
	if err := p.checkCancel(ctx, job.ID, "extract_basic_info"); err != nil {
		return nil, err
	}
	data, err := p.blobs.Get(blob.Handle{Path: job.BlobHandle, Hash: job.ContentHash, Size: job.SizeBytes})
	if err != nil {
		return nil, docerrors.Wrap(docerrors.KindBlobIO, err).WithStage("extract_basic_info")
	}
	sink.notify("extract_basic_info", 5, false)

	if err := p.checkCancel(ctx, job.ID, "detect_type"); err != nil {
		return nil, err
	}
	parsingType := job.ParsingType
	sink.notify("detect_type", 10, false)

	if err := p.checkCancel(ctx, job.ID, "extract_text"); err != nil {
		return nil, err
	}
	rawText := extractText(data)
	sink.notify("extract_text", 40, false)

	pageCount := estimatePageCount(data)
	ocrConfidence := 1.0
	if parsers.NeedsOCRFallback(rawText, pageCount) {
		if err := p.checkCancel(ctx, job.ID, "ocr_fallback"); err != nil {
			return nil, err
		}
		res, err := p.ocr.Recognize(ctx, data, []string{"eng"})
		if err != nil {
			if rawText == "" {
				return nil, docerrors.Wrap(docerrors.KindOCRTransient, err).WithStage("ocr_fallback")
			}
			// Demoted to a warning: stage 3 already produced non-empty text.
			ocrConfidence = 0.5
		} else if res.Text != "" {
			rawText = res.Text
			ocrConfidence = res.Confidence
		}
	}
	sink.notify("ocr_fallback", 40, false)

	if parsingType == types.ParsingAuto {
		parsingType = parsers.DetectType(rawText)
	}

	if err := p.checkCancel(ctx, job.ID, "extract_structured"); err != nil {
		return nil, err
	}
	extractTarget := parsingType
	if _, ok := p.reg.Lookup(extractTarget); !ok {
		extractTarget = types.ParsingUnknown
	}
	result, err := p.reg.Extract(ctx, extractTarget, rawText)
	if err != nil {
		return nil, docerrors.Wrap(docerrors.KindExtractorBug, err).WithStage("extract_structured")
	}
	sink.notify("extract_structured", 80, false)

	if err := p.checkCancel(ctx, job.ID, "quality_score"); err != nil {
		return nil, err
	}
	applyOCRConfidence(result, ocrConfidence)
	sink.notify("quality_score", 90, false)

	return result, nil
}

// checkCancel observes the two independent ways a stage boundary can
// abort a run: the context deadline/cancellation (sync-parse timeout or
// worker pool shutdown) and the job's own cooperative cancel-request
// flag (DELETE /parse/{id} against a running job).
func (p *Pipeline) checkCancel(ctx context.Context, jobID uuid.UUID, stage string) *docerrors.Error {
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return docerrors.Wrap(docerrors.KindDeadlineExceeded, ctx.Err()).WithStage(stage)
		}
		return docerrors.Wrap(docerrors.KindWorkerShutdown, ctx.Err()).WithStage(stage)
	default:
	}
	if j, err := p.store.Get(jobID); err == nil && j.CancelRequested {
		return docerrors.New(docerrors.KindCancelled, "cancellation requested").WithStage(stage)
	}
	return nil
}

// extractText is the direct (non-OCR) text-layer extraction stage.
// PDF text-layer decoding lives outside this module's scope (no PDF
// parsing library is present in the dependency pack); a real deployment
// wires a binding here. Treating the raw bytes as UTF-8-ish text lets
// the rest of the pipeline (detection, structured extraction, OCR
// fallback decision) run unmodified against plain-text and test fixtures.
func extractText(data []byte) string {
	return string(bytes.ToValidUTF8(data, []byte{}))
}

func estimatePageCount(data []byte) int {
	n := bytes.Count(data, []byte("/Type /Page"))
	if n == 0 {
		return 1
	}
	return n
}

func applyOCRConfidence(result *types.Result, confidence float64) {
	switch result.Type {
	case types.ParsingNutritionLabel:
		if result.NutritionLabel != nil {
			result.NutritionLabel.QualityScore = blendConfidence(result.NutritionLabel.QualityScore, confidence)
		}
	case types.ParsingRecipe:
		if result.Recipe != nil {
			result.Recipe.QualityScore = blendConfidence(result.Recipe.QualityScore, confidence)
		}
	case types.ParsingDietGuide:
		if result.DietGuide != nil {
			result.DietGuide.QualityScore = blendConfidence(result.DietGuide.QualityScore, confidence)
		}
	default:
		if result.Unknown != nil {
			result.Unknown.QualityScore = blendConfidence(result.Unknown.QualityScore, confidence)
		}
	}
}

func blendConfidence(score, confidence float64) float64 {
	blended := 0.8*score + 0.2*confidence
	if blended > 1 {
		return 1
	}
	return blended
}

// fail terminates the run according to the error's policy class: a
// cooperative cancellation ack-writes cancelled, a transient failure
// writes nothing (the job stays running for the dispatcher to nack and
// retry), and everything else writes failed with {kind, message, stage}.
func (p *Pipeline) fail(jobID uuid.UUID, e *docerrors.Error) {
	switch e.Class() {
	case docerrors.ClassCancelled:
		if err := p.store.Transition(jobID, []types.State{types.StateRunning}, types.StateCancelled, nil, func(j *types.Job) {
			j.Stage = e.Stage
		}); err == nil {
			metrics.Get().JobsCancelled.Inc()
		}
	case docerrors.ClassTransient:
		// Left running; the dispatcher observes Retryable() and nacks.
	default:
		_ = p.store.Transition(jobID, []types.State{types.StateRunning}, types.StateFailed, nil, func(j *types.Job) {
			j.Error = &types.JobError{Kind: e.Kind, Message: e.Message, Stage: e.Stage}
		})
	}
}
