package runtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/user/taskpilot/internal/types"
)

// FieldType is a JSON Schema primitive accepted in tool arguments.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldBoolean FieldType = "boolean"
)

// Field declares one named tool argument.
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Description string
	MinLength   int
}

// Schema is the ordered argument list of a tool.
type Schema []Field

// Map renders the schema as a JSON Schema object.
func (s Schema) Map() map[string]any {
	props := make(map[string]any, len(s))
	required := make([]string, 0, len(s))
	for _, f := range s {
		prop := map[string]any{"type": string(f.Type)}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		if f.MinLength > 0 && f.Type == FieldString {
			prop["minLength"] = f.MinLength
		}
		props[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// JSON renders the schema as raw JSON Schema bytes.
func (s Schema) JSON() json.RawMessage {
	data, _ := json.Marshal(s.Map())
	return data
}

type validator struct {
	schema *gojsonschema.Schema
}

func compileValidator(params json.RawMessage) (*validator, error) {
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object"}`)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(params))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &validator{schema: schema}, nil
}

// normalizeArgs treats empty or null arguments as an empty object.
func normalizeArgs(args json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(args))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage(`{}`)
	}
	return args
}

func (v *validator) validate(args json.RawMessage) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return &types.ValidationError{Field: "arguments", Reason: err.Error()}
	}
	if result.Valid() {
		return nil
	}
	errs := result.Errors()
	reasons := make([]string, 0, len(errs))
	for _, e := range errs {
		reasons = append(reasons, e.String())
	}
	return &types.ValidationError{Field: errs[0].Field(), Reason: strings.Join(reasons, "; ")}
}
