// Package crypto implements ports.CryptoPort with EIP-191 personal_sign
// verification/recovery on the secp256k1 curve, grounded on the
// decred/dcrd secp256k1 implementation already present in the retrieved
// pack (github.com/decred/dcrd/dcrec/secp256k1/v4, an indirect dependency
// of the teacher's btcec stack, elevated here to direct use).
package crypto

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// EIP191Crypto implements ports.CryptoPort.
type EIP191Crypto struct{}

// New returns the production EIP-191 crypto adapter.
func New() *EIP191Crypto { return &EIP191Crypto{} }

// eip191Hash returns Keccak256("\x19Ethereum Signed Message:\n" + len(message) + message),
// the personal_sign envelope.
func eip191Hash(message string) [32]byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(prefix))
	h.Write([]byte(message))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func decodeSignature(signature string) ([]byte, error) {
	s := strings.TrimPrefix(signature, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(raw) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes (r||s||v), got %d", len(raw))
	}
	return raw, nil
}

// RecoverEIP191 recovers the signing address from a personal_sign
// signature over message.
func (c *EIP191Crypto) RecoverEIP191(signature, message string) (string, error) {
	raw, err := decodeSignature(signature)
	if err != nil {
		return "", err
	}
	hash := eip191Hash(message)

	v := raw[64]
	if v >= 27 {
		v -= 27
	}
	compact := make([]byte, 65)
	compact[0] = v + 27
	copy(compact[1:], raw[:64])

	pubKey, _, err := ecdsa.RecoverCompact(compact, hash[:])
	if err != nil {
		return "", fmt.Errorf("signature recovery failed: %w", err)
	}

	return addressFromPubKey(pubKey), nil
}

// VerifyEIP191 recovers the signer and compares it case-insensitively to
// address.
func (c *EIP191Crypto) VerifyEIP191(address, signature, message string) (bool, error) {
	recovered, err := c.RecoverEIP191(signature, message)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(recovered, address), nil
}

// ParseSignature splits a 65-byte hex signature into (r, s, v).
func (c *EIP191Crypto) ParseSignature(signature string) (r, s []byte, v byte, err error) {
	raw, err := decodeSignature(signature)
	if err != nil {
		return nil, nil, 0, err
	}
	return raw[:32], raw[32:64], raw[64], nil
}

// AggregateSignatures returns the hash of message plus the input
// signatures unchanged: this domain does not use threshold/BLS
// aggregation, only independent per-validator EIP-191 signatures, so
// "aggregation" here is a pass-through audit bundle rather than a
// cryptographic reduction.
func (c *EIP191Crypto) AggregateSignatures(message string, sigs []string) (string, []string, error) {
	hash := eip191Hash(message)
	return hex.EncodeToString(hash[:]), sigs, nil
}

// addressFromPubKey derives an Ethereum-style address: the last 20 bytes
// of Keccak256 of the uncompressed public key's X||Y coordinates.
func addressFromPubKey(pubKey *secp256k1.PublicKey) string {
	uncompressed := pubKey.SerializeUncompressed() // 0x04 || X || Y
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:])
}

// Sign produces a personal_sign-compatible hex signature over message
// using priv, the EIP-191 counterpart to VerifyEIP191. Exported for
// integration tests and any validator-side tooling that needs to produce
// fixtures without duplicating the r||s||v packing logic.
func Sign(priv *secp256k1.PrivateKey, message string) string {
	hash := eip191Hash(message)
	compact := ecdsa.SignCompact(priv, hash[:], false)
	recID := compact[0] - 27
	sig := make([]byte, 65)
	copy(sig[:64], compact[1:])
	sig[64] = recID
	return hex.EncodeToString(sig)
}

// AddressFromPrivateKey derives the Ethereum-style address for priv.
func AddressFromPrivateKey(priv *secp256k1.PrivateKey) string {
	return addressFromPubKey(priv.PubKey())
}

// ParseV parses a hex v component (with or without a 0x prefix) to a
// byte; decimal input is read as hex. Used by
// adapters decoding signatures from differing wire formats.
func ParseV(raw string) (byte, error) {
	raw = strings.TrimPrefix(raw, "0x")
	n, err := strconv.ParseUint(raw, 16, 8)
	if err != nil {
		return 0, err
	}
	return byte(n), nil
}
