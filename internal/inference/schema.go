package inference

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/obralink/obralink/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Per-stage JSON-Schema (draft 2020-12 subset) built as generic maps. Each
// stage output is validated against its schema before it is unmarshaled into
// the typed result; any shape mismatch fails closed as a stage failure.

func buildDiffSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"summary", "changes"},
		"properties": map[string]any{
			"summary": map[string]any{"type": "string", "minLength": 1},
			"changes": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"zone", "kind", "description"},
					"properties": map[string]any{
						"zone":        map[string]any{"type": "string"},
						"kind":        map[string]any{"type": "string", "enum": []string{"added", "removed", "modified"}},
						"description": map[string]any{"type": "string", "minLength": 1},
						"severity":    map[string]any{"type": "string", "enum": []string{"baja", "media", "alta"}},
					},
				},
			},
		},
	}
}

func buildCubicacionSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"items"},
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"description", "unit", "quantity_before", "quantity_after", "delta"},
					"properties": map[string]any{
						"code":            map[string]any{"type": "string"},
						"description":     map[string]any{"type": "string", "minLength": 1},
						"unit":            map[string]any{"type": "string", "minLength": 1},
						"quantity_before": map[string]any{"type": "number"},
						"quantity_after":  map[string]any{"type": "number"},
						"delta":           map[string]any{"type": "number"},
					},
				},
			},
			"notes": map[string]any{"type": "string"},
		},
	}
}

func buildImpactosSchema() map[string]any {
	impactoNode := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"title"},
		"properties": map[string]any{
			"title":       map[string]any{"type": "string", "minLength": 1},
			"description": map[string]any{"type": "string"},
			"cost_delta":  map[string]any{"type": "number"},
			"children": map[string]any{
				"type":  "array",
				"items": map[string]any{"$ref": "#/$defs/impacto"},
			},
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"impactos"},
		"$defs":                map[string]any{"impacto": impactoNode},
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
			"impactos": map[string]any{
				"type":  "array",
				"items": map[string]any{"$ref": "#/$defs/impacto"},
			},
		},
	}
}

var stageSchemas = map[domain.Stage]*jsonschema.Schema{
	domain.StageDiff:       mustCompile("diff.json", buildDiffSchema()),
	domain.StageCubicacion: mustCompile("cubicacion.json", buildCubicacionSchema()),
	domain.StageImpactos:   mustCompile("impactos.json", buildImpactosSchema()),
}

func mustCompile(name string, schema map[string]any) *jsonschema.Schema {
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
		panic(err)
	}
	compiled, err := c.Compile(name)
	if err != nil {
		panic(err)
	}
	return compiled
}

// validateStage checks raw model output against the stage's schema.
func validateStage(stage domain.Stage, raw json.RawMessage) error {
	schema, ok := stageSchemas[stage]
	if !ok {
		return fmt.Errorf("no schema registered for stage %q", stage)
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("output is not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("output failed schema validation: %w", err)
	}
	return nil
}

// DecodeDiff validates and decodes diff stage output.
// Parameters:
//   - raw: raw model output.
// Returns:
//   - *domain.DiffResult: decoded result.
//   - error: non-nil on any shape mismatch.
func DecodeDiff(raw json.RawMessage) (*domain.DiffResult, error) {
	if err := validateStage(domain.StageDiff, raw); err != nil {
		return nil, err
	}
	var result domain.DiffResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode diff result: %w", err)
	}
	return &result, nil
}

// DecodeCubicacion validates and decodes cubicación stage output.
func DecodeCubicacion(raw json.RawMessage) (*domain.CubicacionResult, error) {
	if err := validateStage(domain.StageCubicacion, raw); err != nil {
		return nil, err
	}
	var result domain.CubicacionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cubicacion result: %w", err)
	}
	return &result, nil
}

// DecodeImpactos validates and decodes impactos stage output. The recursive
// impact tree is additionally bounds-checked, since its depth is
// model-controlled.
func DecodeImpactos(raw json.RawMessage) (*domain.ImpactosResult, error) {
	if err := validateStage(domain.StageImpactos, raw); err != nil {
		return nil, err
	}
	var result domain.ImpactosResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode impactos result: %w", err)
	}
	if _, err := result.CountImpactos(); err != nil {
		return nil, err
	}
	return &result, nil
}
