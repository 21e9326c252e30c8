package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// NutrientDef describes one entry in the nutrient vocabulary table:
// its canonical unit and any synonyms a PDF might use for the same thing
// (e.g. a Chinese label heading).
type NutrientDef struct {
	Unit     string   `toml:"unit"`
	Synonyms []string `toml:"synonyms"`
}

// Vocabulary is the externalized nutrient-unit table, letting operators
// extend recognized nutrients without a binary rebuild.
type Vocabulary struct {
	Nutrients map[string]NutrientDef `toml:"nutrients"`
}

// DefaultVocabulary returns the fixed vocabulary named in spec §3 when no
// TOML file overrides it.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{Nutrients: map[string]NutrientDef{
		"calories":      {Unit: "kcal", Synonyms: []string{"热量", "能量", "calorie"}},
		"protein":       {Unit: "g", Synonyms: []string{"蛋白质"}},
		"fat":           {Unit: "g", Synonyms: []string{"脂肪"}},
		"carbohydrates": {Unit: "g", Synonyms: []string{"碳水化合物", "碳水"}},
		"fiber":         {Unit: "g", Synonyms: []string{"膳食纤维"}},
		"sugar":         {Unit: "g", Synonyms: []string{"糖"}},
		"sodium":        {Unit: "mg", Synonyms: []string{"钠"}},
		"calcium":       {Unit: "mg", Synonyms: []string{"钙"}},
		"iron":          {Unit: "mg", Synonyms: []string{"铁"}},
		"vitamin_c":     {Unit: "mg", Synonyms: []string{"维生素C", "维生素c"}},
		"vitamin_a":     {Unit: "µg", Synonyms: []string{"维生素A", "维生素a"}},
	}}
}

// LoadVocabulary reads a TOML vocabulary file, falling back to
// DefaultVocabulary when path does not exist.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultVocabulary(), nil
		}
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}

	var v Vocabulary
	if err := toml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}
	if len(v.Nutrients) == 0 {
		return DefaultVocabulary(), nil
	}
	return &v, nil
}
