package parsers

import (
	"context"

	"github.com/standardbeagle/docparse/internal/types"
)

// UnknownExtractor is the fallback used when a document cannot be
// classified into any known parsing type; it stores the raw text with a
// low quality score.
type UnknownExtractor struct{}

// NewUnknownExtractor builds the fallback extractor.
func NewUnknownExtractor() *UnknownExtractor {
	return &UnknownExtractor{}
}

func (e *UnknownExtractor) Extract(ctx context.Context, rawText string) (*types.Result, error) {
	return &types.Result{
		Type: types.ParsingUnknown,
		Unknown: &types.UnknownResult{
			RawText:      rawText,
			QualityScore: 0.1,
		},
	}, nil
}
