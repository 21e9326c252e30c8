package parsers

import (
	"regexp"
	"strings"

	"github.com/standardbeagle/docparse/internal/types"
)

var (
	nutritionMarkerRe = regexp.MustCompile(`(?i)nutrition facts|营养成分`)
	ingredientsMarkerRe = regexp.MustCompile(`(?i)ingredients|配料`)
	numberedStepRe    = regexp.MustCompile(`(?m)^\s*\d+[.)]\s`)
)

// DetectType classifies raw extracted text into a concrete ParsingType by
// heuristic keyword presence, used when a job is submitted with
// ParsingAuto.
func DetectType(rawText string) types.ParsingType {
	if nutritionMarkerRe.MatchString(rawText) {
		return types.ParsingNutritionLabel
	}
	if ingredientsMarkerRe.MatchString(rawText) && numberedStepRe.MatchString(rawText) {
		return types.ParsingRecipe
	}
	return types.ParsingDietGuide
}

// textDensityPerPage estimates average characters of extracted text per
// page, used to decide whether OCR fallback is warranted.
func textDensityPerPage(rawText string, pageCount int) float64 {
	if pageCount <= 0 {
		pageCount = 1
	}
	return float64(len(strings.TrimSpace(rawText))) / float64(pageCount)
}

// NeedsOCRFallback reports whether the text layer is too sparse to trust,
// per spec's <40 chars/page average threshold.
func NeedsOCRFallback(rawText string, pageCount int) bool {
	return textDensityPerPage(rawText, pageCount) < 40
}
