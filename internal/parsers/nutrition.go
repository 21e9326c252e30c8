package parsers

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/standardbeagle/docparse/internal/config"
	"github.com/standardbeagle/docparse/internal/types"
)

// plausibleRange bounds a normalized nutrient value per 100g serving;
// values outside are treated as extraction noise and dropped.
var plausibleRange = map[string][2]float64{
	"calories": {0, 900},
	"protein":  {0, 100},
	"fat":      {0, 100},
	"carbohydrates": {0, 100},
	"fiber":    {0, 50},
	"sugar":    {0, 100},
	"sodium":   {0, 5000},
	"calcium":  {0, 3000},
	"iron":     {0, 100},
	"vitamin_c": {0, 2000},
	"vitamin_a": {0, 5000},
}

var numberPattern = `(\d+(?:\.\d+)?)`

// NutritionExtractor extracts nutrition_label documents, matching each
// nutrient's vocabulary synonyms against labeled numeric values.
type NutritionExtractor struct {
	vocab *config.Vocabulary
}

// NewNutritionExtractor builds an extractor over the given vocabulary.
func NewNutritionExtractor(vocab *config.Vocabulary) *NutritionExtractor {
	if vocab == nil {
		vocab = config.DefaultVocabulary()
	}
	return &NutritionExtractor{vocab: vocab}
}

func (e *NutritionExtractor) Extract(ctx context.Context, rawText string) (*types.Result, error) {
	nutrients := make(map[string]types.Nutrient)
	var normalizeAttempts, normalizeOK int

	for canonical, def := range e.vocab.Nutrients {
		names := append([]string{canonical}, def.Synonyms...)
		for _, name := range names {
			re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(name) + `[：:]\s*` + numberPattern + `\s*([a-zA-Zµ%]*)`)
			m := re.FindStringSubmatch(rawText)
			if m == nil {
				continue
			}
			normalizeAttempts++
			val, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			unit := m[2]
			if unit == "" {
				unit = def.Unit
			}
			norm, ok := normalizeUnit(val, unit, def.Unit)
			if !ok {
				continue
			}
			if rng, ok := plausibleRange[canonical]; ok {
				if norm < rng[0] || norm > rng[1] {
					continue
				}
			}
			nutrients[canonical] = types.Nutrient{Value: norm, Unit: def.Unit}
			normalizeOK++
			break
		}
	}

	score := quality(float64(len(nutrients))/float64(len(e.vocab.Nutrients)), normalizeOK, normalizeAttempts, 1.0)

	return &types.Result{
		Type: types.ParsingNutritionLabel,
		NutritionLabel: &types.NutritionLabelResult{
			Nutrition:    nutrients,
			RawText:      rawText,
			QualityScore: score,
		},
	}, nil
}

// normalizeUnit converts val in `from` units to the canonical `to` units.
// Supported conversions: kJ→kcal (×0.239), g↔mg (×1000/÷1000),
// mg↔µg (×1000/÷1000).
func normalizeUnit(val float64, from, to string) (float64, bool) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	if from == to || from == "" {
		return val, true
	}
	switch {
	case from == "kj" && to == "kcal":
		return val * 0.239, true
	case from == "g" && to == "mg":
		return val * 1000, true
	case from == "mg" && to == "g":
		return val / 1000, true
	case from == "mg" && to == "µg", from == "mg" && to == "ug":
		return val * 1000, true
	case (from == "µg" || from == "ug") && to == "mg":
		return val / 1000, true
	case from == "kcal" && to == "kcal", from == "g" && to == "g", from == "mg" && to == "mg":
		return val, true
	default:
		return val, false
	}
}

// quality computes a deterministic 0..1 score from the fraction of
// expected fields present, the unit-normalization success rate, and an
// OCR confidence term (1.0 when OCR was not invoked).
func quality(fieldFraction float64, normalizeOK, normalizeAttempts int, ocrConfidence float64) float64 {
	normRate := 1.0
	if normalizeAttempts > 0 {
		normRate = float64(normalizeOK) / float64(normalizeAttempts)
	}
	score := 0.5*fieldFraction + 0.3*normRate + 0.2*ocrConfidence
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
