package api

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// parseMetadataSchema validates the non-file form fields accompanying an
// upload (parsing_type, priority, callback_url), the same way the corpus
// describes MCP tool parameters: a jsonschema.Schema resolved once and
// reused against every request's decoded field map.
var parseMetadataSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"parsing_type": {
			Type: "string",
			Enum: []any{"auto", "nutrition_label", "recipe", "diet_guide"},
		},
		"priority": {
			Type: "string",
			Enum: []any{"high", "normal", "low"},
		},
		"callback_url": {
			Type:   "string",
			Format: "uri",
		},
	},
	Required: []string{"parsing_type"},
}

var resolvedParseMetadataSchema *jsonschema.Resolved

func init() {
	resolved, err := parseMetadataSchema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("api: invalid parse metadata schema: %v", err))
	}
	resolvedParseMetadataSchema = resolved
}

// validateMetadata checks the decoded form fields against
// parseMetadataSchema, returning a human-readable error on mismatch.
func validateMetadata(fields map[string]any) error {
	return resolvedParseMetadataSchema.Validate(fields)
}

// cleanupRequestSchema validates the body of POST /admin/cleanup.
var cleanupRequestSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"days": {
			Type: "integer",
		},
	},
	Required: []string{"days"},
}

var resolvedCleanupRequestSchema *jsonschema.Resolved

func init() {
	resolved, err := cleanupRequestSchema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("api: invalid cleanup request schema: %v", err))
	}
	resolvedCleanupRequestSchema = resolved
}

func validateCleanupRequest(fields map[string]any) error {
	return resolvedCleanupRequestSchema.Validate(fields)
}
