package canon

import "strings"

// EncryptValidatorID computes SHA256(lowercase(address) ‖ secretKey),
// the deterministic one-way mapping from §6.4. secretKey is 32 bytes from
// process config; the result is stable across restarts and must never be
// logged beyond ShortForm's first 16 hex chars.
func EncryptValidatorID(address string, secretKey []byte) string {
	return HashConcat(strings.ToLower(address), string(secretKey))
}

// ShortForm truncates an encrypted id to the first 16 hex chars, the
// only form that may appear in logs.
func ShortForm(encryptedID string) string {
	if len(encryptedID) <= 16 {
		return encryptedID
	}
	return encryptedID[:16]
}
