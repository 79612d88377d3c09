package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema represents a JSON Schema for node configuration data.
type JSONSchema struct {
	Type        string               `json:"type"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property represents a JSON Schema property.
type Property struct {
	Type                 any                  `json:"type,omitempty"`
	Description          string               `json:"description,omitempty"`
	Enum                 []any                `json:"enum,omitempty"`
	Default              any                  `json:"default,omitempty"`
	AdditionalProperties *Property            `json:"additionalProperties,omitempty"`
	Properties           map[string]*Property `json:"properties,omitempty"`
}

var stringMap = &Property{Type: "object", AdditionalProperties: &Property{Type: "string"}}

// ConfigSchema returns the JSON schema for the data of kind, or nil for unknown kinds.
func ConfigSchema(kind NodeKind) *JSONSchema {
	switch kind {
	case NodeKindStart:
		return &JSONSchema{
			Type:  "object",
			Title: "Start node",
			Properties: map[string]*Property{
				"label": {Type: "string"},
			},
		}
	case NodeKindHTTP:
		return &JSONSchema{
			Type:  "object",
			Title: "HTTP request node",
			Properties: map[string]*Property{
				"url":     {Type: "string", Description: "Absolute request URL"},
				"method":  {Type: "string", Description: "HTTP method", Default: MethodGet},
				"headers": stringMap,
				"query":   stringMap,
				"body":    {Description: "Request body, sent as JSON"},
			},
		}
	case NodeKindCode:
		return &JSONSchema{
			Type:  "object",
			Title: "Code node",
			Properties: map[string]*Property{
				"code": {Type: "string"},
			},
		}
	case NodeKindOutput:
		return &JSONSchema{
			Type:  "object",
			Title: "Output node",
			Properties: map[string]*Property{
				"label":  {Type: "string"},
				"result": {Description: "Execution result, written by the server"},
			},
		}
	default:
		return nil
	}
}

// ErrConfigShape is returned when node data does not match the schema of its kind.
var ErrConfigShape = errors.New("node data does not match its kind")

// ValidateConfigShape checks raw node data against the schema of kind.
// Unknown kinds and empty data are accepted; validation reports unknown kinds separately.
func ValidateConfigShape(kind NodeKind, data json.RawMessage) error {
	schema := ConfigSchema(kind)
	if schema == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigShape, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			messages = append(messages, e.String())
		}

		return fmt.Errorf("%w: %s: %s", ErrConfigShape, kind, strings.Join(messages, "; "))
	}

	return nil
}
