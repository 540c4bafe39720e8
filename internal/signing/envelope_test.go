package signing

import (
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/rawblock/evalmesh/adapters/crypto"
	"github.com/rawblock/evalmesh/pkg/models"
)

func signedEvaluation(t *testing.T, priv *secp256k1.PrivateKey, networkID, taskID, outputID string, score, confidence float64, ts time.Time) models.ValidatorEvaluation {
	t.Helper()
	message, err := BuildMessage(networkID, taskID, outputID, score, confidence, ts.Unix())
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
	}
}

func TestBuildMessage_IsDeterministic(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	a, err := BuildMessage("net1", "task1", "out1", 90, 0.8, ts.Unix())
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	// Same logical envelope, built again, must canonicalize identically.
	b, err := BuildMessage("net1", "task1", "out1", 90, 0.8, ts.Unix())
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	if a != b {
		t.Errorf("expected BuildMessage to be deterministic, got %q vs %q", a, b)
	}
}

func TestVerifyEvaluationSignature_AcceptsValidSignature(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ts := time.Unix(1700000000, 0)
	eval := signedEvaluation(t, priv, "net1", "task1", "out1", 90, 0.8, ts)

	ok, err := VerifyEvaluationSignature(crypto.New(), "net1", "task1", eval)
	if err != nil {
		t.Fatalf("VerifyEvaluationSignature: %v", err)
	}
	if !ok {
		t.Errorf("expected a correctly signed evaluation to verify")
	}
}

func TestVerifyEvaluationSignature_RejectsTamperedScore(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ts := time.Unix(1700000000, 0)
	eval := signedEvaluation(t, priv, "net1", "task1", "out1", 90, 0.8, ts)
	eval.Score = 10 // tampered after signing

	ok, err := VerifyEvaluationSignature(crypto.New(), "net1", "task1", eval)
	if err != nil {
		t.Fatalf("VerifyEvaluationSignature: %v", err)
	}
	if ok {
		t.Errorf("expected a tampered score to invalidate the signature")
	}
}

func TestFilterValidSignatures_DropsInvalidKeepsValid(t *testing.T) {
	privGood, _ := secp256k1.GeneratePrivateKey()
	privBad, _ := secp256k1.GeneratePrivateKey()
	ts := time.Unix(1700000000, 0)

	good := signedEvaluation(t, privGood, "net1", "task1", "out1", 80, 0.9, ts)
	bad := signedEvaluation(t, privBad, "net1", "task1", "out2", 80, 0.9, ts)
	bad.Signature = good.Signature // signature belongs to a different message/signer

	valid, err := FilterValidSignatures(crypto.New(), "net1", "task1", []models.ValidatorEvaluation{good, bad}, 1)
	if err != nil {
		t.Fatalf("expected at least 1 valid signature, got error: %v", err)
	}
	if len(valid) != 1 || valid[0].ValidatorAddress != good.ValidatorAddress {
		t.Fatalf("expected only the well-signed evaluation to survive, got %+v", valid)
	}
}

func TestFilterValidSignatures_ErrorsBelowMinValidators(t *testing.T) {
	privBad, _ := secp256k1.GeneratePrivateKey()
	ts := time.Unix(1700000000, 0)
	bad := signedEvaluation(t, privBad, "net1", "task1", "out1", 80, 0.9, ts)
	bad.Signature = "00"

	_, err := FilterValidSignatures(crypto.New(), "net1", "task1", []models.ValidatorEvaluation{bad}, 1)
	if models.CodeOf(err) != models.CodeInsufficientValidSignatures {
		t.Errorf("expected CodeInsufficientValidSignatures, got %v", models.CodeOf(err))
	}
}
