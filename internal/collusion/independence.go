package collusion

import (
	"fmt"
	"time"

	"github.com/rawblock/evalmesh/internal/canon"
	"github.com/rawblock/evalmesh/internal/ports"
	"github.com/rawblock/evalmesh/pkg/models"
)

// IndependenceMessage builds the exact message a validator signs for
// §4.6's independence-proofs mechanism.
func IndependenceMessage(networkID, address string, ts time.Time, nonce string) string {
	return fmt.Sprintf("INDEPENDENCE_PROOF:%s:%s:%d:%s", networkID, address, ts.Unix(), nonce)
}

// VerifyIndependenceProof checks signature freshness (ts within 24h of
// now) and EIP-191 validity via crypto, then returns the completed proof
// with its audit ProofHash.
func VerifyIndependenceProof(crypto ports.CryptoPort, networkID, address, signature, nonce string, ts, now time.Time) (models.IndependenceProof, error) {
	if now.Sub(ts) > 24*time.Hour || ts.After(now) {
		return models.IndependenceProof{}, fmt.Errorf("independence proof timestamp outside 24h window")
	}

	message := IndependenceMessage(networkID, address, ts, nonce)
	ok, err := crypto.VerifyEIP191(address, signature, message)
	if err != nil {
		return models.IndependenceProof{}, err
	}
	if !ok {
		return models.IndependenceProof{}, fmt.Errorf("independence proof signature invalid")
	}

	proofHash := canon.HashConcat(address, networkID, message, signature, fmt.Sprintf("%d", ts.Unix()), nonce)

	return models.IndependenceProof{
		Address:   address,
		NetworkID: networkID,
		Message:   message,
		Signature: signature,
		Timestamp: ts,
		Nonce:     nonce,
		ProofHash: proofHash,
	}, nil
}
