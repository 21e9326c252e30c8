package types

// Nutrient is a single normalized nutrition fact: a value in its canonical
// unit (kcal, g, mg, or µg).
type Nutrient struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// NutritionLabelResult is the structured extraction for parsing_type =
// nutrition_label.
type NutritionLabelResult struct {
	FoodInfo     map[string]string   `json:"food_info,omitempty"`
	Nutrition    map[string]Nutrient `json:"nutrition"`
	RawText      string              `json:"raw_text"`
	QualityScore float64             `json:"quality_score"`
}

// Ingredient is a single parsed ingredient line.
type Ingredient struct {
	Quantity    string `json:"quantity,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Name        string `json:"name"`
	Preparation string `json:"preparation,omitempty"`
}

// RecipeResult is the structured extraction for parsing_type = recipe.
type RecipeResult struct {
	Title        string       `json:"title"`
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions []string     `json:"instructions"`
	PrepTime     string       `json:"prep_time,omitempty"`
	CookTime     string       `json:"cook_time,omitempty"`
	Servings     string       `json:"servings,omitempty"`
	Difficulty   string       `json:"difficulty,omitempty"`
	QualityScore float64      `json:"quality_score"`
}

// GuideSection is one sectioned block of a diet guide.
type GuideSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// DietGuideResult is the structured extraction for parsing_type = diet_guide.
type DietGuideResult struct {
	Sections     []GuideSection `json:"sections"`
	RawText      string          `json:"raw_text"`
	QualityScore float64         `json:"quality_score"`
}

// UnknownResult is produced when detection could not classify the document.
type UnknownResult struct {
	RawText      string  `json:"raw_text"`
	QualityScore float64 `json:"quality_score"`
}

// Result is a tagged union over the four outcome shapes. Exactly one of the
// typed fields is populated, selected by Type.
type Result struct {
	Type           ParsingType            `json:"type"`
	NutritionLabel *NutritionLabelResult  `json:"nutrition_label,omitempty"`
	Recipe         *RecipeResult          `json:"recipe,omitempty"`
	DietGuide      *DietGuideResult       `json:"diet_guide,omitempty"`
	Unknown        *UnknownResult         `json:"unknown,omitempty"`
}

// QualityScore returns the score carried by whichever variant is populated.
func (r *Result) QualityScore() float64 {
	switch r.Type {
	case ParsingNutritionLabel:
		if r.NutritionLabel != nil {
			return r.NutritionLabel.QualityScore
		}
	case ParsingRecipe:
		if r.Recipe != nil {
			return r.Recipe.QualityScore
		}
	case ParsingDietGuide:
		if r.DietGuide != nil {
			return r.DietGuide.QualityScore
		}
	default:
		if r.Unknown != nil {
			return r.Unknown.QualityScore
		}
	}
	return 0
}

// NutrientVocabulary lists the fixed set of recognized nutrient keys.
var NutrientVocabulary = []string{
	"calories", "protein", "fat", "carbohydrates", "fiber", "sugar",
	"sodium", "calcium", "iron", "vitamin_c", "vitamin_a",
}
