// Package signing builds and verifies the §6.2 signature envelope: the
// canonical JSON object a validator signs over one evaluation.
package signing

import (
	"encoding/json"
	"fmt"

	"github.com/rawblock/evalmesh/internal/canon"
	"github.com/rawblock/evalmesh/internal/ports"
	"github.com/rawblock/evalmesh/pkg/models"
)

// envelope mirrors the exact key set from §6.2, alphabetically ordered
// by struct-tag name so json.Marshal's natural field order already
// matches the required lexicographic sort — canon.Canonicalize is still
// applied defensively in case a caller hand-builds the JSON differently.
type envelope struct {
	Confidence float64 `json:"confidence"`
	NetworkID  string  `json:"networkId"`
	OutputID   string  `json:"outputId"`
	Score      float64 `json:"score"`
	TaskID     string  `json:"taskId"`
	Timestamp  int64   `json:"timestamp"`
}

// BuildMessage produces the canonical JSON string a validator signs for
// one evaluation.
func BuildMessage(networkID, taskID, outputID string, score, confidence float64, timestampUnix int64) (string, error) {
	raw, err := json.Marshal(envelope{
		Confidence: confidence,
		NetworkID:  networkID,
		OutputID:   outputID,
		Score:      score,
		TaskID:     taskID,
		Timestamp:  timestampUnix,
	})
	if err != nil {
		return "", err
	}
	canonical, err := canon.Canonicalize(raw)
	if err != nil {
		return "", err
	}
	return string(canonical), nil
}

// VerifyEvaluationSignature rebuilds the envelope for eval and checks it
// against eval.Signature via the crypto port. Invalid signatures cause
// the evaluation to be dropped, never the whole task, per §6.2/§7.
func VerifyEvaluationSignature(crypto ports.CryptoPort, networkID, taskID string, eval models.ValidatorEvaluation) (bool, error) {
	message, err := BuildMessage(networkID, taskID, eval.OutputID, eval.Score, eval.Confidence, eval.Timestamp.Unix())
	if err != nil {
		return false, err
	}
	return crypto.VerifyEIP191(eval.ValidatorAddress, eval.Signature, message)
}

// FilterValidSignatures drops evaluations with invalid signatures,
// returning the survivors. If fewer than minValidators remain, the
// caller should fail with InsufficientValidSignatures.
func FilterValidSignatures(crypto ports.CryptoPort, networkID, taskID string, evals []models.ValidatorEvaluation, minValidators int) ([]models.ValidatorEvaluation, error) {
	var valid []models.ValidatorEvaluation
	for _, e := range evals {
		ok, err := VerifyEvaluationSignature(crypto, networkID, taskID, e)
		if err != nil || !ok {
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) < minValidators {
		return valid, models.NewError(models.CodeInsufficientValidSignatures,
			fmt.Sprintf("only %d of required %d validators had valid signatures", len(valid), minValidators), nil)
	}
	return valid, nil
}
