package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/rawblock/evalmesh/adapters/crypto"
	"github.com/rawblock/evalmesh/internal/calibration"
	"github.com/rawblock/evalmesh/internal/collusion"
	"github.com/rawblock/evalmesh/internal/config"
	"github.com/rawblock/evalmesh/internal/reputation"
	"github.com/rawblock/evalmesh/internal/signing"
	"github.com/rawblock/evalmesh/internal/sysclock"
	"github.com/rawblock/evalmesh/internal/workerpool"
	"github.com/rawblock/evalmesh/pkg/models"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func newDeps() *Deps {
	return &Deps{
		Crypto:      crypto.New(),
		Clock:       fixedClock{t: time.Unix(1700000000, 0)},
		Rng:         sysclock.NewMathRand(1),
		Pool:        workerpool.New(4),
		Reputation:  reputation.NewService(reputation.NewStore()),
		Calibration: calibration.NewStore(),
		Graph:       collusion.NewGraph(),
	}
}

func signedEval(t *testing.T, priv *secp256k1.PrivateKey, networkID, taskID, outputID string, score, confidence float64, ts time.Time, mc *models.ValidatorMethodConfig) models.ValidatorEvaluation {
	t.Helper()
	message, err := signing.BuildMessage(networkID, taskID, outputID, score, confidence, ts.Unix())
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	return models.ValidatorEvaluation{
		ValidatorAddress: crypto.AddressFromPrivateKey(priv),
		OutputID:         outputID,
		Score:            score,
		Confidence:       confidence,
		Timestamp:        ts,
		Signature:        crypto.Sign(priv, message),
		MethodConfig:     mc,
	}
}

func hashMethod(id string) *models.ValidatorMethodConfig {
	return &models.ValidatorMethodConfig{
		MethodID:            id,
		EmbeddingMethod:     models.EmbeddingHashBased,
		ClusteringAlgorithm: models.ClusteringSimpleThreshold,
		ContributionWeights: models.ContributionWeights{Robustness: 0.4, Novelty: 0.3, Diversity: 0.3},
	}
}

func TestEvaluateTask_ProducesAWinnerAndUpdatesReputation(t *testing.T) {
	deps := newDeps()
	ts := time.Unix(1700000000, 0)
	task := &models.Task{
		TaskID:    "task-1",
		NetworkID: "net-1",
		Status:    models.StatusEvaluating,
		Input:     []byte(`{"prompt":"2+2"}`),
	}
	outputs := []models.TaskOutput{
		{OutputID: "out-1", Output: []byte(`{"answer":4}`), MinerAddress: "0xminer1"},
		{OutputID: "out-2", Output: []byte(`{"answer":5}`), MinerAddress: "0xminer2"},
	}

	priv1, _ := secp256k1.GeneratePrivateKey()
	priv2, _ := secp256k1.GeneratePrivateKey()
	priv3, _ := secp256k1.GeneratePrivateKey()
	mc := hashMethod("m1")
	evals := []models.ValidatorEvaluation{
		signedEval(t, priv1, "net-1", "task-1", "out-1", 95, 0.9, ts, mc),
		signedEval(t, priv2, "net-1", "task-1", "out-1", 90, 0.85, ts, mc),
		signedEval(t, priv3, "net-1", "task-1", "out-2", 20, 0.5, ts, mc),
	}

	manifest := config.NetworkManifest{
		NetworkID:          "net-1",
		ConsensusThreshold: 0.5,
		MinValidators:      2,
	}

	outcome, err := EvaluateTask(context.Background(), deps, manifest, []byte("secret-key"), task, outputs, evals)
	if err != nil {
		t.Fatalf("EvaluateTask: %v", err)
	}

	if outcome.Evaluation.WinningOutputID != "out-1" {
		t.Errorf("expected out-1 to win on 2-of-3 agreement, got %q", outcome.Evaluation.WinningOutputID)
	}
	if len(outcome.Calibration) != 3 {
		t.Errorf("expected calibration metrics for all 3 validators, got %d", len(outcome.Calibration))
	}
	if len(outcome.Adversarial) != 3 {
		t.Errorf("expected an adversarial decision per validator, got %d", len(outcome.Adversarial))
	}
	if len(outcome.RejectedForSignature) != 0 {
		t.Errorf("expected no signature rejections, got %v", outcome.RejectedForSignature)
	}

	addr1 := crypto.AddressFromPrivateKey(priv1)
	if m := deps.Reputation.ReputationMultiplier(addr1, ts); m <= 0 {
		t.Errorf("expected validator who picked the winning output to retain positive reputation standing, got %f", m)
	}

	if task.Status != models.StatusConsensusReached && task.Status != models.StatusChallenged {
		t.Errorf("expected task to transition out of evaluating, got %q", task.Status)
	}
}

func TestEvaluateTask_DropsInvalidSignaturesButStillMeetsMinValidators(t *testing.T) {
	deps := newDeps()
	ts := time.Unix(1700000000, 0)
	task := &models.Task{
		TaskID:    "task-2",
		NetworkID: "net-1",
		Status:    models.StatusEvaluating,
		Input:     []byte(`{}`),
	}
	outputs := []models.TaskOutput{
		{OutputID: "out-1", Output: []byte(`{"a":1}`)},
		{OutputID: "out-2", Output: []byte(`{"a":2}`)},
	}

	priv1, _ := secp256k1.GeneratePrivateKey()
	priv2, _ := secp256k1.GeneratePrivateKey()
	mc := hashMethod("m1")
	good1 := signedEval(t, priv1, "net-1", "task-2", "out-1", 90, 0.9, ts, mc)
	good2 := signedEval(t, priv2, "net-1", "task-2", "out-1", 88, 0.9, ts, mc)
	tampered := good2
	tampered.ValidatorAddress = "0xforged"

	manifest := config.NetworkManifest{NetworkID: "net-1", ConsensusThreshold: 0.5, MinValidators: 2}

	outcome, err := EvaluateTask(context.Background(), deps, manifest, []byte("secret-key"), task, outputs, []models.ValidatorEvaluation{good1, good2, tampered})
	if err != nil {
		t.Fatalf("EvaluateTask: %v", err)
	}
	if len(outcome.RejectedForSignature) != 1 || outcome.RejectedForSignature[0] != "0xforged" {
		t.Errorf("expected exactly the forged evaluation to be rejected, got %v", outcome.RejectedForSignature)
	}
}

func TestEvaluateTask_ErrorsWhenTooFewValidSignaturesRemain(t *testing.T) {
	deps := newDeps()
	ts := time.Unix(1700000000, 0)
	task := &models.Task{TaskID: "task-3", NetworkID: "net-1", Status: models.StatusEvaluating, Input: []byte(`{}`)}
	outputs := []models.TaskOutput{{OutputID: "out-1", Output: []byte(`{"a":1}`)}}

	priv1, _ := secp256k1.GeneratePrivateKey()
	mc := hashMethod("m1")
	good := signedEval(t, priv1, "net-1", "task-3", "out-1", 90, 0.9, ts, mc)
	good.Signature = "00"

	manifest := config.NetworkManifest{NetworkID: "net-1", ConsensusThreshold: 0.5, MinValidators: 1}

	_, err := EvaluateTask(context.Background(), deps, manifest, []byte("secret-key"), task, outputs, []models.ValidatorEvaluation{good})
	if models.CodeOf(err) != models.CodeInsufficientValidSignatures {
		t.Errorf("expected CodeInsufficientValidSignatures, got %v", err)
	}
}
