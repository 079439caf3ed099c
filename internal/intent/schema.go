package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/af-corp/intentd/internal/types"
)

var (
	// ErrParseTimeout means no provider answered within the parse budget.
	ErrParseTimeout = errors.New("intent parse timeout")
	// ErrParseInvalid means a provider answered but the output was unusable.
	ErrParseInvalid = errors.New("intent parse invalid")
)

const maxDescriptors = 8

// outputSchema is the structured-output contract for language-model replies.
var outputSchema = mustSchema(map[string]any{
	"type":     "object",
	"required": []string{"intent", "confidence", "entityDescriptors"},
	"properties": map[string]any{
		"intent": map[string]any{
			"type": "string",
			"enum": intentNames(),
		},
		"confidence": map[string]any{
			"type":    "number",
			"minimum": 0,
			"maximum": 1,
		},
		"entityDescriptors": map[string]any{
			"type":     "array",
			"maxItems": maxDescriptors,
			"items": map[string]any{
				"type":     "object",
				"required": []string{"phrase"},
				"properties": map[string]any{
					"phrase": map[string]any{"type": "string", "minLength": 1, "maxLength": 200},
					"type":   map[string]any{"type": "string", "enum": []string{"story", "task", "sprint", "project"}},
				},
			},
		},
		"parameters": map[string]any{"type": "object"},
	},
})

func intentNames() []string {
	names := make([]string, len(types.KnownIntents))
	for i, in := range types.KnownIntents {
		names[i] = string(in)
	}
	return names
}

func mustSchema(schema map[string]any) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("compile intent output schema: %v", err))
	}
	return s
}

type modelOutput struct {
	Intent            string  `json:"intent"`
	Confidence        float64 `json:"confidence"`
	EntityDescriptors []struct {
		Phrase string `json:"phrase"`
		Type   string `json:"type"`
	} `json:"entityDescriptors"`
	Parameters map[string]any `json:"parameters"`
}

// decodeOutput validates raw model output against the contract. Any
// violation rejects the whole reply; fields are never partially trusted.
func decodeOutput(raw string) (types.ParsedIntent, error) {
	body := stripFences(raw)
	if body == "" {
		return types.ParsedIntent{}, fmt.Errorf("%w: empty reply", ErrParseInvalid)
	}

	result, err := outputSchema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return types.ParsedIntent{}, fmt.Errorf("%w: %v", ErrParseInvalid, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return types.ParsedIntent{}, fmt.Errorf("%w: %s", ErrParseInvalid, strings.Join(msgs, "; "))
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return types.ParsedIntent{}, fmt.Errorf("%w: %v", ErrParseInvalid, err)
	}

	in, _ := types.ParseIntent(out.Intent)
	parsed := types.ParsedIntent{
		Intent:     in,
		Confidence: out.Confidence,
		Parameters: out.Parameters,
		Source:     types.SourceLLM,
	}
	for _, d := range out.EntityDescriptors {
		phrase := strings.TrimSpace(d.Phrase)
		if phrase == "" {
			return types.ParsedIntent{}, fmt.Errorf("%w: blank entity phrase", ErrParseInvalid)
		}
		et, _ := types.ParseEntityType(d.Type)
		parsed.Descriptors = append(parsed.Descriptors, types.EntityDescriptor{Phrase: phrase, Type: et})
	}

	if err := checkParameters(parsed); err != nil {
		return types.ParsedIntent{}, err
	}
	return parsed, nil
}

// checkParameters enforces per-intent parameters the schema cannot express.
func checkParameters(p types.ParsedIntent) error {
	switch p.Intent {
	case types.IntentUpdateStatus:
		if s, _ := p.Parameters["status"].(string); strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: update_status requires parameters.status", ErrParseInvalid)
		}
	case types.IntentCreateItem:
		if s, _ := p.Parameters["title"].(string); strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: create_item requires parameters.title", ErrParseInvalid)
		}
	}
	return nil
}

// stripFences removes a surrounding ```json fence some models add despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
