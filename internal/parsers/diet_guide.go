package parsers

import (
	"context"
	"regexp"
	"strings"

	edlib "github.com/hbollon/go-edlib"

	"github.com/standardbeagle/docparse/internal/types"
)

// headingRe matches a short standalone line that is plausibly a section
// heading: title case or ending without sentence punctuation.
var headingRe = regexp.MustCompile(`(?m)^\s*([A-Z][A-Za-z0-9 ,'&/-]{2,60})\s*$`)

// knownHeadings are canonical diet-guide section names used to normalize
// near-miss OCR headings ("Recommndations" → "Recommendations") via
// Jaro-Winkler similarity.
var knownHeadings = []string{
	"Overview", "Recommendations", "Foods to Avoid", "Foods to Favor",
	"Meal Plan", "Portion Sizes", "Special Considerations", "Summary",
}

const headingSimilarityThreshold = 0.85

// DietGuideExtractor sectionizes free-form dietary guidance documents by
// heading.
type DietGuideExtractor struct{}

// NewDietGuideExtractor builds a diet guide extractor.
func NewDietGuideExtractor() *DietGuideExtractor {
	return &DietGuideExtractor{}
}

func (e *DietGuideExtractor) Extract(ctx context.Context, rawText string) (*types.Result, error) {
	sections := e.sectionize(rawText)

	expected := 3.0 // at least a few recognizable sections expected
	present := float64(len(sections))
	if present > expected {
		present = expected
	}
	score := quality(present/expected, 1, 1, 1.0)

	return &types.Result{
		Type: types.ParsingDietGuide,
		DietGuide: &types.DietGuideResult{
			Sections:     sections,
			RawText:      rawText,
			QualityScore: score,
		},
	}, nil
}

func (e *DietGuideExtractor) sectionize(rawText string) []types.GuideSection {
	lines := strings.Split(rawText, "\n")
	var sections []types.GuideSection
	var current *types.GuideSection

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if headingRe.MatchString(line) {
			if canonical, ok := nearestHeading(trimmed); ok {
				if current != nil {
					sections = append(sections, *current)
				}
				current = &types.GuideSection{Heading: canonical}
				continue
			}
		}
		if current == nil {
			current = &types.GuideSection{Heading: "Overview"}
		}
		if current.Body != "" {
			current.Body += "\n"
		}
		current.Body += trimmed
	}
	if current != nil {
		sections = append(sections, *current)
	}
	return sections
}

// nearestHeading reports the closest known heading to candidate, if any
// is within headingSimilarityThreshold Jaro-Winkler similarity.
func nearestHeading(candidate string) (string, bool) {
	best := ""
	bestScore := 0.0
	for _, h := range knownHeadings {
		score, err := edlib.StringsSimilarity(strings.ToLower(candidate), strings.ToLower(h), edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if float64(score) > bestScore {
			bestScore = float64(score)
			best = h
		}
	}
	if bestScore >= headingSimilarityThreshold {
		return best, true
	}
	return "", false
}
