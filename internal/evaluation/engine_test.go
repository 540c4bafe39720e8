package evaluation

import (
	"testing"
	"time"

	"github.com/rawblock/evalmesh/internal/canon"
	"github.com/rawblock/evalmesh/internal/replay"
	"github.com/rawblock/evalmesh/pkg/models"
)

func TestEvaluateDeterministic_WinnerIsHighestConsensusAndScore(t *testing.T) {
	input := []byte(`{"prompt":"2+2"}`)
	inputHash, _ := canon.HashJSON(input)

	o1 := []byte(`"4"`)
	o1ID, _ := canon.HashJSON(o1)
	o2 := []byte(`"5"`)
	o2ID, _ := canon.HashJSON(o2)

	bundle := func() *models.ReplayBundle {
		return &models.ReplayBundle{TaskInputHash: inputHash, Temperature: 0, RandomSeed: "abc"}
	}

	outputs := []models.TaskOutput{
		{OutputID: o1ID, Output: o1, Metadata: models.TaskOutputMetadata{ReplayBundle: bundle()}},
		{OutputID: o2ID, Output: o2, Metadata: models.TaskOutputMetadata{ReplayBundle: bundle()}},
	}
	evals := []models.ValidatorEvaluation{
		{OutputID: o1ID, Score: 90, ValidatorAddress: "v1"},
		{OutputID: o1ID, Score: 88, ValidatorAddress: "v2"},
		{OutputID: o1ID, Score: 92, ValidatorAddress: "v3"},
		{OutputID: o2ID, Score: 10, ValidatorAddress: "v1"},
		{OutputID: o2ID, Score: 12, ValidatorAddress: "v2"},
		{OutputID: o2ID, Score: 8, ValidatorAddress: "v3"},
	}

	result := EvaluateDeterministic("task1", input, outputs, evals, ReplayConfig{ScoringModuleHash: "smh"})
	if result.WinningOutputID != o1ID {
		t.Fatalf("expected o1 to win, got %s", result.WinningOutputID)
	}
	if result.FinalScore != 90 {
		t.Fatalf("expected final score 90, got %v", result.FinalScore)
	}
}

func TestEvaluateDeterministic_RejectsNonDeterministicOutput(t *testing.T) {
	input := []byte(`{"prompt":"2+2"}`)
	inputHash, _ := canon.HashJSON(input)
	o1 := []byte(`"4"`)
	o1ID, _ := canon.HashJSON(o1)

	outputs := []models.TaskOutput{
		{OutputID: o1ID, Output: o1, Metadata: models.TaskOutputMetadata{ReplayBundle: &models.ReplayBundle{
			TaskInputHash: inputHash, Temperature: 0.7, RandomSeed: "abc",
		}}},
	}
	evals := []models.ValidatorEvaluation{{OutputID: o1ID, Score: 90, ValidatorAddress: "v1"}}

	result := EvaluateDeterministic("task1", input, outputs, evals, ReplayConfig{})
	if result.WinningOutputID != "" || result.FinalScore != 0 {
		t.Fatalf("expected empty winner when the only output is rejected, got %+v", result)
	}
}

func TestEvaluateHumanInTheLoop_BoostsBoundedRange(t *testing.T) {
	statistical := models.EvaluationResult{FinalScore: 80}
	result, err := EvaluateHumanInTheLoop("task1", statistical, "o2", []string{"o1", "o2", "o3"}, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 80.0 * 1.1
	if result.FinalScore != want {
		t.Fatalf("expected final score %v, got %v", want, result.FinalScore)
	}
}

func TestEvaluateHumanInTheLoop_RejectsSelectionOutsideSet(t *testing.T) {
	statistical := models.EvaluationResult{FinalScore: 80}
	_, err := EvaluateHumanInTheLoop("task1", statistical, "o9", []string{"o1", "o2"}, 0.1)
	if models.CodeOf(err) != models.CodeHumanSelectionOutOfSet {
		t.Fatalf("expected HumanSelectionOutOfSet, got %v", err)
	}
}

func TestValidateReplayIntegration_UsedByEvaluation(t *testing.T) {
	// Sanity check that replay.Requirements zero-value allows a bundle-less output through.
	res := replay.ValidateReplay([]byte("x"), "id", nil, nil, nil, []byte("in"), replay.Requirements{})
	if !res.Valid {
		t.Fatalf("expected valid result when no bundle is required and none given")
	}
	_ = time.Now()
}
