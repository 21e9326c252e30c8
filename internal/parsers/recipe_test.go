package parsers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRecipe = `Chicken Stir Fry
Serves 4
Prep time: 10 min
Cook time: 15 min

Ingredients:
2 cups chicken, diced
1 tbsp soy sauce
1 onion, sliced

Instructions:
1. Heat oil in a pan.
2. Add chicken and cook until browned.
3. Add vegetables and sauce, stir fry for 5 minutes.
`

func TestRecipeExtractorParsesFullRecipe(t *testing.T) {
	e := NewRecipeExtractor()
	res, err := e.Extract(context.Background(), sampleRecipe)
	require.NoError(t, err)
	require.NotNil(t, res.Recipe)

	r := res.Recipe
	assert.Equal(t, "Chicken Stir Fry", r.Title)
	assert.Equal(t, "4", r.Servings)
	assert.Equal(t, "10 min", r.PrepTime)
	assert.Equal(t, "15 min", r.CookTime)
	require.Len(t, r.Instructions, 3)
	require.NotEmpty(t, r.Ingredients)

	var found bool
	for _, ing := range r.Ingredients {
		if ing.Preparation == "diced" {
			found = true
		}
	}
	assert.True(t, found, "expected an ingredient tagged with preparation 'diced'")
}

func TestDifficultyFromStepCount(t *testing.T) {
	assert.Equal(t, "", difficultyFromStepCount(0))
	assert.Equal(t, "easy", difficultyFromStepCount(3))
	assert.Equal(t, "medium", difficultyFromStepCount(7))
	assert.Equal(t, "hard", difficultyFromStepCount(12))
}
