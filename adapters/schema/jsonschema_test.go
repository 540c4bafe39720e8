package schema

import (
	"testing"

	"github.com/rawblock/evalmesh/pkg/models"
)

func TestValidateInput_RejectsMissingRequiredField(t *testing.T) {
	v := New()
	v.Register("net1", &Document{
		Properties: map[string]Field{
			"prompt": {Type: "string", Required: true},
		},
	}, nil)

	err := v.ValidateInput("net1", []byte(`{}`))
	if err == nil {
		t.Fatalf("expected schema validation error for missing prompt")
	}
	if models.CodeOf(err) != models.CodeSchemaValidation {
		t.Errorf("CodeOf = %v, want SchemaValidation", models.CodeOf(err))
	}
}

func TestValidateInput_AcceptsWellFormedPayload(t *testing.T) {
	v := New()
	v.Register("net1", &Document{
		Properties: map[string]Field{
			"prompt": {Type: "string", Required: true},
			"maxTokens": {Type: "number"},
		},
	}, nil)

	err := v.ValidateInput("net1", []byte(`{"prompt":"hello","maxTokens":128}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateInput_UnregisteredNetworkSkipsValidation(t *testing.T) {
	v := New()
	if err := v.ValidateInput("unknown", []byte(`not even json`)); err != nil {
		t.Fatalf("expected nil for unregistered network, got %v", err)
	}
}
