package parsers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/docparse/internal/config"
)

func TestNutritionExtractorParsesKnownNutrients(t *testing.T) {
	e := NewNutritionExtractor(config.DefaultVocabulary())
	text := "Nutrition Facts\n蛋白质：12.5g\n钠: 200mg\n热量: 250 kcal"

	res, err := e.Extract(context.Background(), text)
	require.NoError(t, err)
	require.NotNil(t, res.NutritionLabel)

	n := res.NutritionLabel.Nutrition
	assert.Equal(t, 12.5, n["protein"].Value)
	assert.Equal(t, "g", n["protein"].Unit)
	assert.Equal(t, 200.0, n["sodium"].Value)
	assert.Equal(t, 250.0, n["calories"].Value)
	assert.Greater(t, res.NutritionLabel.QualityScore, 0.0)
}

func TestNutritionExtractorRejectsImplausibleValue(t *testing.T) {
	e := NewNutritionExtractor(config.DefaultVocabulary())
	text := "热量: 99999 kcal"

	res, err := e.Extract(context.Background(), text)
	require.NoError(t, err)
	_, ok := res.NutritionLabel.Nutrition["calories"]
	assert.False(t, ok)
}

func TestNormalizeUnitConversions(t *testing.T) {
	v, ok := normalizeUnit(1000, "kJ", "kcal")
	require.True(t, ok)
	assert.InDelta(t, 239, v, 0.01)

	v, ok = normalizeUnit(1, "g", "mg")
	require.True(t, ok)
	assert.Equal(t, 1000.0, v)

	v, ok = normalizeUnit(500, "mg", "g")
	require.True(t, ok)
	assert.Equal(t, 0.5, v)
}
