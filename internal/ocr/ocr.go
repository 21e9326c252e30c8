// Package ocr defines the OCR fallback strategy invoked by the pipeline
// when a document's extracted text layer is too sparse to trust. Actual
// OCR engines are an external concern; this package provides the
// interface and a no-op stub so the pipeline can exercise the stage
// without a hard dependency on a native OCR toolchain.
package ocr

import (
	"context"
	"errors"
)

// Result is the outcome of an OCR pass over rasterized pages.
type Result struct {
	Text       string
	Confidence float64
}

// Engine rasterizes and recognizes text from a document's pages. A real
// deployment wires in a native OCR binding; Engine keeps that swap
// isolated from the pipeline.
type Engine interface {
	Recognize(ctx context.Context, data []byte, languages []string) (Result, error)
}

// ErrUnavailable is returned by Stub to signal OCR was attempted but no
// engine is configured, which the pipeline demotes to a warning when the
// direct text extraction stage already produced non-empty text.
var ErrUnavailable = errors.New("ocr: no engine configured")

// Stub is a no-op Engine used when the process has no OCR binding
// available. It always reports ErrUnavailable so callers fall back to
// whatever text direct extraction already produced.
type Stub struct{}

// NewStub returns the no-op Engine.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) Recognize(ctx context.Context, data []byte, languages []string) (Result, error) {
	return Result{}, ErrUnavailable
}
