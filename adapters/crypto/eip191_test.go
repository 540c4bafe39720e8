package crypto

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func signMessage(t *testing.T, priv *secp256k1.PrivateKey, message string) string {
	t.Helper()
	return Sign(priv, message)
}

func TestVerifyEIP191_RoundTrip(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	address := addressFromPubKey(priv.PubKey())

	message := `{"confidence":0.9,"networkId":"n1","outputId":"o1","score":90,"taskId":"t1","timestamp":1}`
	sig := signMessage(t, priv, message)

	c := New()
	ok, err := c.VerifyEIP191(address, sig, message)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected signature to verify against its own signer")
	}

	ok, err = c.VerifyEIP191(address, sig, message+"tampered")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected signature over a different message to fail")
	}
}
