package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// EmbeddingGateway converts text into a fixed-dimension vector. Embed never
// fails: any provider error degrades to the zero vector so one flaky call
// cannot abort an ingestion batch or a user query. Zero vectors rank poorly
// under cosine distance; the re-embed job repairs them later.
type EmbeddingGateway struct {
	provider IEmbedProvider
	model    string
	dim      int
	timeout  time.Duration
}

func NewEmbeddingGateway(provider IEmbedProvider, model string, dim int, timeout time.Duration) *EmbeddingGateway {
	return &EmbeddingGateway{provider: provider, model: model, dim: dim, timeout: timeout}
}

func (g *EmbeddingGateway) Dimension() int {
	return g.dim
}

func (g *EmbeddingGateway) ModelName() string {
	return g.model
}

// Embed returns the embedding for text, or the zero vector on any failure.
func (g *EmbeddingGateway) Embed(ctx context.Context, text string) []float32 {
	vec, err := g.TryEmbed(ctx, text)
	if err != nil {
		logutil.GetLogger(ctx).Warn("embedding degraded to zero vector",
			zap.String("provider", g.provider.Name()),
			zap.Int("text_len", len(text)),
			zap.Error(err),
		)
		return make([]float32, g.dim)
	}
	return vec
}

// TryEmbed surfaces the raw provider error. Used by callers that must know
// whether the vector is real, such as the re-embed repair job.
func (g *EmbeddingGateway) TryEmbed(ctx context.Context, text string) ([]float32, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	vec, err := g.provider.Embed(ctx, g.model, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != g.dim {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), g.dim)
	}
	return vec, nil
}

// IsZeroVector reports whether vec carries no signal, i.e. every component
// is exactly zero.
func IsZeroVector(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
