// Package distribution implements the statistical distribution service
// of §4.2: embedding, clustering, distribution analysis, contribution
// scoring, and preference-weighted pre-filtering.
package distribution

import (
	"crypto/sha256"
	"math"
	"sync"

	"github.com/rawblock/evalmesh/internal/canon"
	"github.com/rawblock/evalmesh/pkg/models"
)

// DefaultDimension is the default embedding dimensionality d=384.
const DefaultDimension = 384

// Embedder produces a vector in R^d for an output payload.
type Embedder interface {
	Embed(output []byte) ([]float64, error)
	Method() models.EmbeddingMethod
}

// HashEmbedder is the deterministic, dependency-free, first-class
// default: SHA-256 of the canonical JSON payload, expanded to d
// dimensions by repeated hashing, mapped to [-1,1]^d and L2-normalized.
// It has no external dependency and is always available.
type HashEmbedder struct {
	Dimension int
}

// NewHashEmbedder returns a HashEmbedder at DefaultDimension.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{Dimension: DefaultDimension}
}

func (h *HashEmbedder) Method() models.EmbeddingMethod { return models.EmbeddingHashBased }

// Embed is deterministic: two outputs that are semantically identical
// JSON — differing only in key order or whitespace — canonicalize to
// the same bytes and therefore produce an identical, L2-normalized
// vector. Output bytes that aren't valid JSON fail canon.Canonicalize
// and are returned as an error rather than hashed as-is, since an
// unparseable output has no canonical form to be deterministic over.
func (h *HashEmbedder) Embed(output []byte) ([]float64, error) {
	dim := h.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}
	canonical, err := canon.Canonicalize(output)
	if err != nil {
		return nil, err
	}
	vec := make([]float64, dim)
	seed := canonical
	idx := 0
	for idx < dim {
		sum := sha256.Sum256(seed)
		for _, b := range sum {
			if idx >= dim {
				break
			}
			// map byte [0,255] -> [-1,1]
			vec[idx] = float64(b)/127.5 - 1.0
			idx++
		}
		seed = sum[:]
	}
	normalizeL2(vec)
	return vec, nil
}

func normalizeL2(v []float64) {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

// SentenceTransformerEmbedder represents a local mean-pooled,
// L2-normalized transformer embedding model. The actual model inference
// is an external concern (model weights, tokenizer); this type defines
// the seam a concrete adapter plugs into.
type SentenceTransformerEmbedder struct {
	// Infer produces raw, unnormalized token embeddings for mean-pooling.
	// A concrete adapter wires this to a local inference runtime.
	Infer func(output []byte) ([][]float64, error)
}

func (s *SentenceTransformerEmbedder) Method() models.EmbeddingMethod {
	return models.EmbeddingSentenceTransformers
}

func (s *SentenceTransformerEmbedder) Embed(output []byte) ([]float64, error) {
	tokens, err := s.Infer(output)
	if err != nil || len(tokens) == 0 {
		return nil, err
	}
	dim := len(tokens[0])
	pooled := make([]float64, dim)
	for _, t := range tokens {
		for i, v := range t {
			pooled[i] += v
		}
	}
	for i := range pooled {
		pooled[i] /= float64(len(tokens))
	}
	normalizeL2(pooled)
	return pooled, nil
}

// OpenAIEmbedder calls a remote embeddings API with a user-provided
// credential and falls back to hash-based embedding on any failure, per
// §4.2.
type OpenAIEmbedder struct {
	Call     func(output []byte) ([]float64, error)
	Fallback *HashEmbedder
}

func (o *OpenAIEmbedder) Method() models.EmbeddingMethod { return models.EmbeddingOpenAI }

func (o *OpenAIEmbedder) Embed(output []byte) ([]float64, error) {
	if o.Call != nil {
		if v, err := o.Call(output); err == nil {
			return v, nil
		}
	}
	fb := o.Fallback
	if fb == nil {
		fb = NewHashEmbedder()
	}
	return fb.Embed(output)
}

// Cache memoizes embeddings by outputId, concurrency-safe, per §5's
// "embedding cache is a concurrent memoizer keyed by outputId".
type Cache struct {
	mu    sync.RWMutex
	byKey map[string][]float64
}

// NewCache returns an empty memoizer.
func NewCache() *Cache {
	return &Cache{byKey: make(map[string][]float64)}
}

// GetOrCompute returns the cached embedding for outputID, computing and
// storing it via embed if absent.
func (c *Cache) GetOrCompute(outputID string, embed func() ([]float64, error)) ([]float64, error) {
	c.mu.RLock()
	if v, ok := c.byKey[outputID]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err := embed()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byKey[outputID] = v
	c.mu.Unlock()
	return v, nil
}
