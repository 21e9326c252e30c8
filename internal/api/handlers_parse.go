package api

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"

	docerrors "github.com/standardbeagle/docparse/internal/errors"
	"github.com/standardbeagle/docparse/internal/metrics"
	"github.com/standardbeagle/docparse/internal/security"
	"github.com/standardbeagle/docparse/internal/types"
)

const uploadFieldName = "file"

// multipartOverhead bounds the extra bytes a multipart encoding adds
// around the file content itself (boundaries, headers, other form
// fields), so the body size cap tracks the declared file size limit
// without letting an oversized file slip through inside the slack.
const multipartOverhead = 64 * 1024

// uploadedFile is the raw bytes and declared metadata from a multipart
// parse request, before validation.
type uploadedFile struct {
	filename string
	data     []byte
	fields   map[string]any
}

// parseUpload reads a single-file multipart request, bounding memory use
// by capping the request body at maxSize.
func parseUpload(w http.ResponseWriter, r *http.Request, maxSize int64) (*uploadedFile, *docerrors.Error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		return nil, docerrors.Wrap(docerrors.KindTooLarge, err)
	}
	file, header, err := r.FormFile(uploadFieldName)
	if err != nil {
		return nil, docerrors.New(docerrors.KindEmpty, "missing \"file\" part")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, docerrors.Wrap(docerrors.KindBlobIO, err)
	}

	fields := formFields(r.MultipartForm)
	return &uploadedFile{filename: header.Filename, data: data, fields: fields}, nil
}

func formFields(form *multipart.Form) map[string]any {
	fields := make(map[string]any)
	if form == nil {
		return fields
	}
	for k, v := range form.Value {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields
}

func stringField(fields map[string]any, key, fallback string) string {
	if v, ok := fields[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// parseSync performs the full pipeline inline on the request goroutine,
// bounded by the configured synchronous deadline, and never touches the
// queue.
func (h *Handler) parseSync(w http.ResponseWriter, r *http.Request) {
	upload, verr := parseUpload(w, r, h.cfg.Validator.MaxSyncFileSize)
	if verr != nil {
		h.writeValidationError(w, r, verr)
		return
	}
	if err := validateMetadata(upload.fields); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	info, verr := security.NewFileValidator(h.cfg.Validator.MaxFileSize, h.cfg.Validator.MaxSyncFileSize).Validate(upload.data, upload.filename, true)
	if verr != nil {
		h.writeValidationError(w, r, verr)
		return
	}

	parsingType := types.ParsingType(stringField(upload.fields, "parsing_type", string(types.ParsingAuto)))

	jobID := types.NewID()
	safeName, verr := security.SanitizeFilename(upload.filename, info.Hash)
	if verr != nil {
		h.writeValidationError(w, r, verr)
		return
	}
	handle, err := h.blobs.Put(jobID.String(), safeName, upload.data)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to persist upload")
		return
	}

	job := &types.Job{
		ID:          jobID,
		Filename:    safeName,
		SizeBytes:   info.Size,
		ContentHash: handle.Hash,
		BlobHandle:  handle.Path,
		ParsingType: parsingType,
		Priority:    types.PriorityNormal,
	}
	if _, err := h.store.Create(job); err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to create job")
		return
	}
	metrics.Get().JobsSubmitted.Inc()

	if err := h.store.Transition(jobID, []types.State{types.StatePending}, types.StateRunning, nil, nil); err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to start job")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.API.SyncDeadline)
	defer cancel()

	if err := h.pipeline.Run(ctx, jobID); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			h.writeError(w, r, http.StatusGatewayTimeout, "parse exceeded the synchronous deadline")
			return
		}
		h.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	final, err := h.store.Get(jobID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "job vanished after completion")
		return
	}
	h.writeJSON(w, r, http.StatusOK, "parsed", final.Result)
}

// parseAsync validates and stores the upload, enqueues a job, and
// returns immediately with its id.
func (h *Handler) parseAsync(w http.ResponseWriter, r *http.Request) {
	upload, verr := parseUpload(w, r, h.cfg.Validator.MaxFileSize)
	if verr != nil {
		h.writeValidationError(w, r, verr)
		return
	}
	if err := validateMetadata(upload.fields); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	info, verr := h.validate.Validate(upload.data, upload.filename, false)
	if verr != nil {
		h.writeValidationError(w, r, verr)
		return
	}

	parsingType := types.ParsingType(stringField(upload.fields, "parsing_type", string(types.ParsingAuto)))
	priority := types.Priority(stringField(upload.fields, "priority", string(types.PriorityNormal)))
	if !types.ValidPriority(priority) {
		h.writeError(w, r, http.StatusBadRequest, "invalid priority")
		return
	}
	callbackURL := stringField(upload.fields, "callback_url", "")

	jobID, status, err := h.submitJob(upload, info, parsingType, priority, callbackURL, nil)
	if err != nil {
		h.writeError(w, r, status, err.Error())
		return
	}
	h.writeJSON(w, r, http.StatusAccepted, "accepted", map[string]any{"job_id": jobID})
}

// parseBatch accepts multiple files sharing one parsing_type, grouped
// under a single batch id.
func (h *Handler) parseBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Validator.MaxFileSize*16+multipartOverhead)
	if err := r.ParseMultipartForm(h.cfg.Validator.MaxFileSize * 16); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "failed to parse multipart body")
		return
	}
	fields := formFields(r.MultipartForm)
	if err := validateMetadata(fields); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	parsingType := types.ParsingType(stringField(fields, "parsing_type", string(types.ParsingAuto)))
	priority := types.Priority(stringField(fields, "priority", string(types.PriorityNormal)))

	files := r.MultipartForm.File[uploadFieldName]
	if len(files) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "no files supplied")
		return
	}

	batchID := types.NewID()
	jobIDs := make([]uuid.UUID, 0, len(files))

	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "failed to open one of the uploaded files")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "failed to read one of the uploaded files")
			return
		}
		info, verr := h.validate.Validate(data, fh.Filename, false)
		if verr != nil {
			h.writeValidationError(w, r, verr)
			return
		}
		upload := &uploadedFile{filename: fh.Filename, data: data, fields: fields}
		jobID, status, err := h.submitJob(upload, info, parsingType, priority, "", &batchID)
		if err != nil {
			h.writeError(w, r, status, err.Error())
			return
		}
		jobIDs = append(jobIDs, jobID)
	}

	h.writeJSON(w, r, http.StatusAccepted, "accepted", map[string]any{
		"batch_id": batchID,
		"job_ids":  jobIDs,
	})
}

// submitJob persists the blob, creates the job record, and enqueues it.
func (h *Handler) submitJob(upload *uploadedFile, info *security.Info, parsingType types.ParsingType, priority types.Priority, callbackURL string, batchID *uuid.UUID) (uuid.UUID, int, error) {
	if !types.ValidParsingType(parsingType) {
		return uuid.Nil, http.StatusBadRequest, errors.New("invalid parsing_type")
	}

	jobID := types.NewID()
	safeName, verr := security.SanitizeFilename(upload.filename, info.Hash)
	if verr != nil {
		return uuid.Nil, http.StatusBadRequest, verr
	}
	handle, err := h.blobs.Put(jobID.String(), safeName, upload.data)
	if err != nil {
		return uuid.Nil, http.StatusInternalServerError, err
	}

	job := &types.Job{
		ID:          jobID,
		BatchID:     batchID,
		Filename:    safeName,
		SizeBytes:   info.Size,
		ContentHash: handle.Hash,
		BlobHandle:  handle.Path,
		ParsingType: parsingType,
		Priority:    priority,
		CallbackURL: callbackURL,
	}
	if _, err := h.store.Create(job); err != nil {
		return uuid.Nil, http.StatusInternalServerError, err
	}
	metrics.Get().JobsSubmitted.Inc()

	if err := h.queue.Enqueue(jobID, priority, time.Now().UTC()); err != nil {
		return uuid.Nil, http.StatusInternalServerError, err
	}
	return jobID, http.StatusAccepted, nil
}

// writeValidationError maps a docerrors.Error produced during upload
// validation to its documented HTTP status.
func (h *Handler) writeValidationError(w http.ResponseWriter, r *http.Request, err *docerrors.Error) {
	status := http.StatusBadRequest
	if err.Kind == docerrors.KindTooLarge {
		status = http.StatusRequestEntityTooLarge
	}
	h.writeError(w, r, status, err.Error())
}
