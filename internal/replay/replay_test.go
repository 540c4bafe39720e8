package replay

import (
	"testing"

	"github.com/rawblock/evalmesh/internal/canon"
	"github.com/rawblock/evalmesh/pkg/models"
)

func TestValidateReplay_Success(t *testing.T) {
	input := []byte(`{"prompt":"2+2"}`)
	output := []byte(`"4"`)
	outputID, _ := canon.HashJSON(output)
	inputHash, _ := canon.HashJSON(input)

	bundle := &models.ReplayBundle{
		TaskInputHash: inputHash,
		Temperature:   0,
		RandomSeed:    "abc",
	}

	res := ValidateReplay(output, outputID, bundle, nil, nil, input, Requirements{SeedRequired: true})
	if !res.Valid {
		t.Fatalf("expected valid replay, got reason: %s", res.Reason)
	}
}

func TestValidateReplay_NonZeroTemperatureRejected(t *testing.T) {
	input := []byte(`{"prompt":"2+2"}`)
	output := []byte(`"4"`)
	outputID, _ := canon.HashJSON(output)
	inputHash, _ := canon.HashJSON(input)

	bundle := &models.ReplayBundle{
		TaskInputHash: inputHash,
		Temperature:   0.7,
		RandomSeed:    "abc",
	}

	res := ValidateReplay(output, outputID, bundle, nil, nil, input, Requirements{})
	if res.Valid {
		t.Fatalf("expected rejection for nonzero temperature")
	}
}

func TestValidateReplay_StepTraceMismatch(t *testing.T) {
	input := []byte(`{"prompt":"2+2"}`)
	output := []byte(`"4"`)
	outputID, _ := canon.HashJSON(output)
	inputHash, _ := canon.HashJSON(input)

	bundle := &models.ReplayBundle{TaskInputHash: inputHash, Temperature: 0, RandomSeed: "abc"}
	trace := &models.StepTraceHash{TraceHash: "deadbeef", StepHashes: []string{"h1", "h2"}}

	res := ValidateReplay(output, outputID, bundle, trace, nil, input, Requirements{})
	if res.Valid {
		t.Fatalf("expected rejection for mismatched step-trace hash")
	}
}
