// Package taskstate implements the task state machine of §4.8: lifecycle
// transitions, consensus checks, and redo/timeout handling.
package taskstate

import (
	"math"

	"github.com/rawblock/evalmesh/pkg/models"
)

// MaxRedos is the default cap on user-redo attempts per §4.8.
const MaxRedos = 3

// validTransitions enumerates the monotonic lifecycle of §4.8. Only
// engine-initiated transitions listed here are legal.
var validTransitions = map[models.TaskStatus][]models.TaskStatus{
	models.StatusSubmitted:        {models.StatusMining, models.StatusTimedOut},
	models.StatusMining:           {models.StatusEvaluating, models.StatusTimedOut},
	models.StatusEvaluating:       {models.StatusPreFiltering, models.StatusConsensusReached, models.StatusTimedOut, models.StatusChallenged},
	models.StatusPreFiltering:     {models.StatusUserSelecting, models.StatusTimedOut},
	models.StatusUserSelecting:    {models.StatusConsensusReached, models.StatusTimedOut, models.StatusUserRejected},
	models.StatusConsensusReached: {models.StatusPaid, models.StatusChallenged},
	models.StatusPaid:             {},
	models.StatusChallenged:       {},
	models.StatusTimedOut:         {},
	models.StatusUserRejected:     {},
}

// CanTransition reports whether from -> to is a legal engine-initiated
// transition.
func CanTransition(from, to models.TaskStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition mutates t.Status if the move is legal, else returns
// InvalidInput. user-selecting -> consensus-reached additionally requires
// a non-empty selection drawn from t.PreFilteredOutputs.
func Transition(t *models.Task, to models.TaskStatus, humanSelection string) error {
	if !CanTransition(t.Status, to) {
		return models.NewError(models.CodeInvalidInput, "illegal task transition "+string(t.Status)+" -> "+string(to), nil)
	}

	if t.Status == models.StatusUserSelecting && to == models.StatusConsensusReached {
		if !contains(t.PreFilteredOutputs, humanSelection) {
			return models.NewError(models.CodeHumanSelectionOutOfSet, "human selection not in pre-filtered set", nil)
		}
	}

	t.Status = to
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// ConsensusCheck implements §4.8's formula: acceptCount =
// #{e: e.score >= 50}; reached iff acceptCount >=
// ceil(totalEvaluations*consensusThreshold) && totalEvaluations >=
// minValidators.
func ConsensusCheck(evaluations []models.ValidatorEvaluation, consensusThreshold float64, minValidators int) (reached bool, acceptCount, total int) {
	total = len(evaluations)
	for _, e := range evaluations {
		if e.Score >= 50 {
			acceptCount++
		}
	}
	required := int(math.Ceil(float64(total) * consensusThreshold))
	reached = acceptCount >= required && total >= minValidators
	return reached, acceptCount, total
}

// RequestRedo increments a task's redo counter, rejecting further
// attempts once it exceeds MaxRedos.
func RequestRedo(t *models.Task) error {
	if t.RedoCount > MaxRedos {
		return models.NewError(models.CodeMaxRedosReached, "maximum redo attempts exceeded", nil)
	}
	t.RedoCount++
	return nil
}
