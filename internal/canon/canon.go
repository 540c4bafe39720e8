// Package canon implements canonical-JSON hashing: the H(x) used
// throughout the evaluation, replay, and signature-envelope logic.
// Canonicalization sorts object keys lexicographically before hashing so
// that semantically identical payloads hash identically regardless of
// field order.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Canonicalize re-marshals arbitrary JSON bytes with object keys sorted
// recursively. Non-object JSON (arrays, scalars) passes through
// unchanged structurally but is still re-encoded for stable formatting.
func Canonicalize(data []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(sortKeys(v))
}

func sortKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, kv{k, sortKeys(t[k])})
		}
		return ordered
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return v
	}
}

type kv struct {
	Key   string
	Value any
}

// orderedMap marshals as a JSON object preserving insertion order, which
// sortKeys has already sorted lexicographically by key.
type orderedMap []kv

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, p := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyBytes, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		valBytes, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyBytes...)
		buf = append(buf, ':')
		buf = append(buf, valBytes...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Hash returns the canonical lowercase-hex SHA-256 hash of raw bytes,
// without any JSON canonicalization. Used for content addressing raw
// outputs and for composing hashes of already-canonical substrings.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashJSON canonicalizes data as JSON, then hashes it. This is H(x) for
// any structured payload in the spec (task input, execution env,
// signature envelope).
func HashJSON(data []byte) (string, error) {
	c, err := Canonicalize(data)
	if err != nil {
		return "", err
	}
	return Hash(c), nil
}

// HashValue marshals v to JSON, canonicalizes, and hashes it — the
// convenience form used when the caller has a Go struct rather than raw
// bytes.
func HashValue(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return HashJSON(raw)
}

// HashConcat hashes the concatenation of the given strings in order,
// implementing H(a ‖ b ‖ ...) forms such as the step-trace hash and the
// replay hash.
func HashConcat(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
