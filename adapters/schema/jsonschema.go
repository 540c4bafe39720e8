// Package schema implements ports.SchemaValidator. No JSON Schema library
// appears anywhere in the retrieved pack, so this validates against a
// minimal structural subset (required fields, primitive types, nested
// objects/arrays) read from the network manifest's own input/output
// schema documents, parsed with encoding/json — see DESIGN.md for why no
// third-party schema library could be grounded here.
package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rawblock/evalmesh/pkg/models"
)

// Field describes one property of a Document.
type Field struct {
	Type       string             `json:"type"` // "string" | "number" | "boolean" | "object" | "array"
	Required   bool               `json:"required"`
	Properties map[string]Field   `json:"properties,omitempty"`
	Items      *Field             `json:"items,omitempty"`
}

// Document is a schema: the top-level shape of a payload.
type Document struct {
	Properties map[string]Field `json:"properties"`
}

// Validator implements ports.SchemaValidator, holding one input and one
// output Document per registered network.
type Validator struct {
	mu      sync.RWMutex
	inputs  map[string]Document
	outputs map[string]Document
}

// New returns an empty Validator; networks register schemas via Register.
func New() *Validator {
	return &Validator{
		inputs:  make(map[string]Document),
		outputs: make(map[string]Document),
	}
}

// Register attaches input/output schemas to a networkID. A nil Document
// for either disables validation on that side for that network.
func (v *Validator) Register(networkID string, input, output *Document) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if input != nil {
		v.inputs[networkID] = *input
	}
	if output != nil {
		v.outputs[networkID] = *output
	}
}

func (v *Validator) ValidateInput(networkID string, payload []byte) error {
	v.mu.RLock()
	doc, ok := v.inputs[networkID]
	v.mu.RUnlock()
	if !ok {
		return nil
	}
	return validateAgainst(doc, payload)
}

func (v *Validator) ValidateOutput(networkID string, payload []byte) error {
	v.mu.RLock()
	doc, ok := v.outputs[networkID]
	v.mu.RUnlock()
	if !ok {
		return nil
	}
	return validateAgainst(doc, payload)
}

func validateAgainst(doc Document, payload []byte) error {
	var value map[string]any
	if err := json.Unmarshal(payload, &value); err != nil {
		return models.NewError(models.CodeSchemaValidation, "payload is not a JSON object", err)
	}

	var errs []string
	for name, field := range doc.Properties {
		v, present := value[name]
		if !present {
			if field.Required {
				errs = append(errs, fmt.Sprintf("missing required field %q", name))
			}
			continue
		}
		if msg := checkType(name, field, v); msg != "" {
			errs = append(errs, msg)
		}
	}
	if len(errs) > 0 {
		return models.NewError(models.CodeSchemaValidation, fmt.Sprintf("%d schema errors: %v", len(errs), errs), nil)
	}
	return nil
}

func checkType(name string, field Field, v any) string {
	switch field.Type {
	case "string":
		if _, ok := v.(string); !ok {
			return fmt.Sprintf("field %q must be a string", name)
		}
	case "number":
		if _, ok := v.(float64); !ok {
			return fmt.Sprintf("field %q must be a number", name)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("field %q must be a boolean", name)
		}
	case "object":
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Sprintf("field %q must be an object", name)
		}
		for childName, childField := range field.Properties {
			childVal, present := obj[childName]
			if !present {
				if childField.Required {
					return fmt.Sprintf("missing required field %q.%q", name, childName)
				}
				continue
			}
			if msg := checkType(name+"."+childName, childField, childVal); msg != "" {
				return msg
			}
		}
	case "array":
		arr, ok := v.([]any)
		if !ok {
			return fmt.Sprintf("field %q must be an array", name)
		}
		if field.Items != nil {
			for i, item := range arr {
				if msg := checkType(fmt.Sprintf("%s[%d]", name, i), *field.Items, item); msg != "" {
					return msg
				}
			}
		}
	}
	return ""
}
