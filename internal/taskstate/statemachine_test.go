package taskstate

import (
	"testing"

	"github.com/rawblock/evalmesh/pkg/models"
)

func TestTransition_RejectsIllegalMove(t *testing.T) {
	task := &models.Task{Status: models.StatusSubmitted}
	if err := Transition(task, models.StatusPaid, ""); err == nil {
		t.Fatalf("expected error transitioning submitted -> paid directly")
	}
}

func TestTransition_HumanSelectionMustBeInPreFilteredSet(t *testing.T) {
	task := &models.Task{Status: models.StatusUserSelecting, PreFilteredOutputs: []string{"a", "b"}}
	if err := Transition(task, models.StatusConsensusReached, "c"); err == nil {
		t.Fatalf("expected HumanSelectionOutOfSet error")
	}
	if err := Transition(task, models.StatusConsensusReached, "a"); err != nil {
		t.Fatalf("expected valid selection to succeed: %v", err)
	}
}

func TestConsensusCheck_TrivialWithSingleValidator(t *testing.T) {
	evals := []models.ValidatorEvaluation{{Score: 90}}
	reached, accept, total := ConsensusCheck(evals, 0.5, 1)
	if !reached || accept != 1 || total != 1 {
		t.Fatalf("expected trivial consensus with minValidators=1, got reached=%v accept=%d total=%d", reached, accept, total)
	}
}

func TestRequestRedo_CapsAtMaxRedos(t *testing.T) {
	task := &models.Task{}
	for i := 0; i < MaxRedos+1; i++ {
		if err := RequestRedo(task); err != nil {
			t.Fatalf("unexpected error on redo %d: %v", i, err)
		}
	}
	if err := RequestRedo(task); err == nil {
		t.Fatalf("expected MaxRedosReached after exceeding cap")
	}
}
