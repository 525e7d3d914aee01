// Package embedding is the adapter over the embedding model: the external
// collaborator specified only at its interface (embed(text) -> unit-norm
// fixed-dimension vector).
package embedding

import (
	"context"
	"crypto/sha256"
	"math"

	"github.com/fnbdesign/git-notes-memory/internal/memerr"
)

// Service maps text to a fixed-dimension, unit-norm vector.
type Service interface {
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HashingService is a deterministic, dependency-free stand-in for a real
// embedding model: it hashes n-grams into fixed buckets and L2-normalizes.
// It is not semantically meaningful; it exists so the rest of the system
// (index writes, similarity search, recall_similar) can be exercised
// without a model file. Production deployments inject a real Service.
type HashingService struct {
	dim int
}

func NewHashingService(dim int) *HashingService {
	return &HashingService{dim: dim}
}

func (h *HashingService) Dimension() int { return h.dim }

func (h *HashingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if h.dim <= 0 {
		return nil, memerr.New(memerr.CategoryEmbedding, "embedding dimension must be positive", "configure a positive EmbeddingDimension")
	}
	vec := make([]float32, h.dim)
	for i := 0; i+2 < len(text); i++ {
		sum := sha256.Sum256([]byte(text[i : i+3]))
		bucket := int(sum[0]) | int(sum[1])<<8
		vec[bucket%h.dim] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		norm = 1
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

var _ Service = (*HashingService)(nil)
