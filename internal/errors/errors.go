// Package errors defines the closed error taxonomy used across the
// ingestion pipeline, matching the kinds enumerated in the service
// specification: validation, transient, permanent, timeout, and exhaustion
// failures. Handlers map Kind to an HTTP status; nothing else free-forms an
// error string across a package boundary.
package errors

import (
	"fmt"
	"time"
)

// Class groups a Kind into one of the policy buckets from the taxonomy:
// validation errors never enqueue, transient errors retry, permanent
// errors fail terminally, timeouts are deadline-specific, exhaustion
// follows a retry budget running out, internal covers server errors and
// unknown kinds, and cancelled marks a cooperative cancellation.
type Class string

const (
	ClassValidation Class = "validation"
	ClassTransient  Class = "transient"
	ClassPermanent  Class = "permanent"
	ClassTimeout    Class = "timeout"
	ClassExhaustion Class = "exhaustion"
	ClassInternal   Class = "internal"
	ClassCancelled  Class = "cancelled"
)

// Kind values, grouped by class.
const (
	KindTooLarge           = "too_large"
	KindEmpty              = "empty"
	KindWrongExtension     = "wrong_extension"
	KindNotPDF             = "not_pdf"
	KindCorruptSignature   = "corrupt_signature"
	KindSuspectedMalicious = "suspected_malicious"
	KindInvalidFilename    = "invalid_filename"

	KindBlobIO           = "blob_io"
	KindStoreUnavailable = "store_unavailable"
	KindOCRTransient     = "ocr_transient"
	KindWorkerShutdown   = "worker_shutdown"

	KindUnparseable           = "unparseable"
	KindUnsupportedPDFVariant = "unsupported_pdf_variant"
	KindExtractorBug          = "extractor_bug"

	KindDeadlineExceeded = "deadline_exceeded"

	KindExhaustedRetries = "exhausted_retries"

	KindServerError = "server_error"

	KindCancelled = "cancelled"
)

var kindClass = map[string]Class{
	KindTooLarge:              ClassValidation,
	KindEmpty:                 ClassValidation,
	KindWrongExtension:        ClassValidation,
	KindNotPDF:                ClassValidation,
	KindCorruptSignature:      ClassValidation,
	KindSuspectedMalicious:    ClassValidation,
	KindInvalidFilename:       ClassValidation,
	KindBlobIO:                ClassTransient,
	KindStoreUnavailable:      ClassTransient,
	KindOCRTransient:          ClassTransient,
	KindWorkerShutdown:        ClassTransient,
	KindUnparseable:           ClassPermanent,
	KindUnsupportedPDFVariant: ClassPermanent,
	KindExtractorBug:          ClassPermanent,
	KindDeadlineExceeded:      ClassTimeout,
	KindExhaustedRetries:      ClassExhaustion,
	KindServerError:           ClassInternal,
	KindCancelled:             ClassCancelled,
}

// ClassOf returns the policy class for a kind string. Unknown kinds are
// treated as internal errors.
func ClassOf(kind string) Class {
	if c, ok := kindClass[kind]; ok {
		return c
	}
	return ClassInternal
}

// Error is the single error type used across package boundaries. It
// carries a Kind (one of the Kind* constants), a human message, the stage
// that produced it (when applicable), and free-form details.
type Error struct {
	Kind       string
	Message    string
	Stage      string
	Details    map[string]any
	Underlying error
	Timestamp  time.Time
}

// New creates an Error with the given kind and message.
func New(kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Timestamp: time.Now()}
}

// Wrap creates an Error that carries an underlying cause.
func Wrap(kind string, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), Underlying: err, Timestamp: time.Now()}
}

// WithStage records the pipeline stage active when the error occurred.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// WithDetails attaches free-form structured context.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Class reports the policy bucket for this error's kind.
func (e *Error) Class() Class { return ClassOf(e.Kind) }

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s at stage %s: %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/As against the underlying cause.
func (e *Error) Unwrap() error { return e.Underlying }

// Retryable reports whether a worker should nack (retry) rather than fail
// terminally for this error.
func (e *Error) Retryable() bool {
	return e.Class() == ClassTransient
}
