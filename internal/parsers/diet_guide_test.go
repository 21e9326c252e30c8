package parsers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGuide = `Overview
This guide covers general dietary recommendations for adults.

Recommendations
Eat more vegetables and whole grains.

Foods to Avoid
Limit processed sugar and fried foods.
`

func TestDietGuideExtractorSectionizes(t *testing.T) {
	e := NewDietGuideExtractor()
	res, err := e.Extract(context.Background(), sampleGuide)
	require.NoError(t, err)
	require.NotNil(t, res.DietGuide)
	require.GreaterOrEqual(t, len(res.DietGuide.Sections), 3)
	assert.Equal(t, "Overview", res.DietGuide.Sections[0].Heading)
}

func TestNearestHeadingToleratesTypo(t *testing.T) {
	canonical, ok := nearestHeading("Recommndations")
	require.True(t, ok)
	assert.Equal(t, "Recommendations", canonical)
}

func TestDetectTypeClassifiesNutritionLabel(t *testing.T) {
	pt := DetectType("Nutrition Facts\nCalories 250")
	assert.Equal(t, "nutrition_label", string(pt))
}

func TestDetectTypeClassifiesRecipe(t *testing.T) {
	pt := DetectType("Ingredients\n1. Mix\n2. Bake")
	assert.Equal(t, "recipe", string(pt))
}

func TestNeedsOCRFallback(t *testing.T) {
	assert.True(t, NeedsOCRFallback("short", 1))
	assert.False(t, NeedsOCRFallback(repeatString("word ", 20), 1))
}

func repeatString(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
