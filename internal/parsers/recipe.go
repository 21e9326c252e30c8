package parsers

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/surgebase/porter2"

	"github.com/standardbeagle/docparse/internal/types"
)

var (
	sectionHeaderRe   = regexp.MustCompile(`(?im)^\s*(ingredients|配料|instructions|directions|steps|做法)\s*[:：]?\s*$`)
	instructionLineRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s*(.+)$`)
	ingredientLineRe  = regexp.MustCompile(`^\s*([\d./]+)?\s*([a-zA-Zµ%]*)\s*(.+?)\s*$`)
	servingsRe        = regexp.MustCompile(`(?i)serves?\s*(\d+)|servings?[:\s]*(\d+)`)
	prepTimeRe        = regexp.MustCompile(`(?i)prep(?:aration)?\s*time[:\s]*(\d+)\s*(min|minute|hour)`)
	cookTimeRe        = regexp.MustCompile(`(?i)cook(?:ing)?\s*time[:\s]*(\d+)\s*(min|minute|hour)`)
)

// prepWords are stemmed via porter2 so "chopped"/"chop"/"chopping" all
// match the same preparation vocabulary entry.
var prepWords = []string{"chopped", "diced", "minced", "sliced", "grated", "peeled", "crushed", "melted"}

// RecipeExtractor splits recipe documents into ingredients and numbered
// instructions.
type RecipeExtractor struct {
	stemmedPrepWords map[string]bool
}

// NewRecipeExtractor builds an extractor with the stemmed preparation
// vocabulary precomputed.
func NewRecipeExtractor() *RecipeExtractor {
	stemmed := make(map[string]bool, len(prepWords))
	for _, w := range prepWords {
		stemmed[porter2.Stem(w)] = true
	}
	return &RecipeExtractor{stemmedPrepWords: stemmed}
}

func (e *RecipeExtractor) Extract(ctx context.Context, rawText string) (*types.Result, error) {
	title := firstNonEmptyLine(rawText)

	ingredientsBlock, instructionsBlock := e.splitSections(rawText)

	ingredients := e.parseIngredients(ingredientsBlock)
	instructions := parseInstructions(instructionsBlock)

	servings := firstIntMatch(servingsRe, rawText)
	prepTime := firstDurationMatch(prepTimeRe, rawText)
	cookTime := firstDurationMatch(cookTimeRe, rawText)

	expectedFields := 6.0 // title, ingredients, instructions, servings, prepTime, cookTime
	present := 0.0
	if title != "" {
		present++
	}
	if len(ingredients) > 0 {
		present++
	}
	if len(instructions) > 0 {
		present++
	}
	if servings != "" {
		present++
	}
	if prepTime != "" {
		present++
	}
	if cookTime != "" {
		present++
	}

	score := quality(present/expectedFields, 1, 1, 1.0)

	return &types.Result{
		Type: types.ParsingRecipe,
		Recipe: &types.RecipeResult{
			Title:         title,
			Ingredients:   ingredients,
			Instructions:  instructions,
			PrepTime:      prepTime,
			CookTime:      cookTime,
			Servings:      servings,
			Difficulty:    difficultyFromStepCount(len(instructions)),
			QualityScore:  score,
		},
	}, nil
}

// splitSections divides the document body around an "Ingredients" header
// and an "Instructions"/"Directions"/"Steps" header.
func (e *RecipeExtractor) splitSections(rawText string) (ingredients, instructions string) {
	lines := strings.Split(rawText, "\n")
	var section string
	var ingBuf, instrBuf strings.Builder
	for _, line := range lines {
		if sectionHeaderRe.MatchString(line) {
			lower := strings.ToLower(line)
			if strings.Contains(lower, "ingredient") || strings.Contains(line, "配料") {
				section = "ingredients"
			} else {
				section = "instructions"
			}
			continue
		}
		switch section {
		case "ingredients":
			ingBuf.WriteString(line)
			ingBuf.WriteByte('\n')
		case "instructions":
			instrBuf.WriteString(line)
			instrBuf.WriteByte('\n')
		}
	}
	return ingBuf.String(), instrBuf.String()
}

func (e *RecipeExtractor) parseIngredients(block string) []types.Ingredient {
	var out []types.Ingredient
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := ingredientLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		quantity := m[1]
		unit := m[2]
		rest := m[3]

		prep := e.extractPreparation(rest)
		name := rest
		if prep != "" {
			name = strings.TrimSpace(strings.TrimSuffix(rest, prep))
			name = strings.TrimRight(name, ", ")
		}

		out = append(out, types.Ingredient{
			Quantity:    quantity,
			Unit:        unit,
			Name:        name,
			Preparation: prep,
		})
	}
	return out
}

// extractPreparation finds the trailing preparation clause of an
// ingredient line by stemming each word and checking it against the
// preparation vocabulary.
func (e *RecipeExtractor) extractPreparation(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for _, w := range words {
		w = strings.Trim(w, ",.")
		if e.stemmedPrepWords[porter2.Stem(w)] {
			return w
		}
	}
	return ""
}

func parseInstructions(block string) []string {
	matches := instructionLineRe.FindAllStringSubmatch(block, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

func firstNonEmptyLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

func firstIntMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		if _, err := strconv.Atoi(g); err == nil {
			return g
		}
	}
	return ""
}

func firstDurationMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1] + " " + m[2])
}

func difficultyFromStepCount(n int) string {
	switch {
	case n == 0:
		return ""
	case n <= 4:
		return "easy"
	case n <= 9:
		return "medium"
	default:
		return "hard"
	}
}
