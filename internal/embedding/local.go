package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// LocalProvider is a deterministic, dependency-free embedder: each token is
// hashed into a fixed-size vector and the sum is L2-normalized. Quality is
// far below a learned model, but identical text always maps to the identical
// vector, which is enough for development and tests.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a LocalProvider. A non-positive dimension falls
// back to 256.
func NewLocalProvider(cfg Config) *LocalProvider {
	dim := cfg.Dimension
	if dim <= 0 {
		dim = 256
	}
	return &LocalProvider{dimension: dim}
}

// Embed hashes each text into a normalized vector.
func (p *LocalProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.embedOne(text)
	}
	return out, nil
}

func (p *LocalProvider) embedOne(text string) []float32 {
	vec := make([]float32, p.dimension)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dimension))
		// Sign from a second hash bit keeps token collisions from only
		// ever reinforcing each other.
		if sum&(1<<63) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

// Dimension returns the fixed vector dimension.
func (p *LocalProvider) Dimension() int {
	return p.dimension
}
