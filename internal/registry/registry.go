// Package registry dispatches extraction work to the parser implementation
// registered for a document's parsing type.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/standardbeagle/docparse/internal/types"
)

// Extractor turns raw page text into a typed Result. Implementations live
// in internal/parsers; the caller registers each under one ParsingType.
type Extractor interface {
	Extract(ctx context.Context, rawText string) (*types.Result, error)
}

// Registry maps a ParsingType to the Extractor that handles it.
type Registry struct {
	mu         sync.RWMutex
	extractors map[types.ParsingType]Extractor
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{extractors: make(map[types.ParsingType]Extractor)}
}

// Register binds an Extractor to a ParsingType, replacing any prior
// registration for the same type.
func (r *Registry) Register(pt types.ParsingType, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[pt] = e
}

// Lookup returns the Extractor for pt, or false if none is registered.
func (r *Registry) Lookup(pt types.ParsingType) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[pt]
	return e, ok
}

// Extract dispatches to the registered Extractor for pt. Callers that
// already resolved ParsingAuto to a concrete type should pass that
// concrete type here; registry does not itself perform detection.
func (r *Registry) Extract(ctx context.Context, pt types.ParsingType, rawText string) (*types.Result, error) {
	e, ok := r.Lookup(pt)
	if !ok {
		return nil, fmt.Errorf("no extractor registered for parsing type %q", pt)
	}
	return e.Extract(ctx, rawText)
}
