package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/model"
)

const reembedBatchSize = 100

// ZeroEmbeddedLister finds chunks whose embedding degraded to the zero
// vector during ingestion and lets the job replace them.
type ZeroEmbeddedLister interface {
	ListZeroEmbedded(ctx context.Context, dim, limit int) ([]model.KnowledgeChunk, error)
	UpdateEmbedding(ctx context.Context, id int64, vec []float32) error
}

// Embedder is the strict embedding path: an error means the chunk stays
// degraded until the next run.
type Embedder interface {
	TryEmbed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// ReembedJob repairs zero-vector chunks left behind by embedding provider
// outages at ingestion time.
type ReembedJob struct {
	chunks   ZeroEmbeddedLister
	embedder Embedder
}

func NewReembedJob(chunks ZeroEmbeddedLister, embedder Embedder) *ReembedJob {
	return &ReembedJob{chunks: chunks, embedder: embedder}
}

func (j *ReembedJob) Name() string {
	return "chunk_reembed"
}

func (j *ReembedJob) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	degraded, err := j.chunks.ListZeroEmbedded(ctx, j.embedder.Dimension(), reembedBatchSize)
	if err != nil {
		return err
	}
	if len(degraded) == 0 {
		return nil
	}
	repaired := 0
	for _, chunk := range degraded {
		vec, err := j.embedder.TryEmbed(ctx, chunk.Content)
		if err != nil {
			// Provider still down; leave the rest for the next run.
			logger.Warn("reembed failed", zap.Int64("chunk_id", chunk.ID), zap.Error(err))
			break
		}
		if err := j.chunks.UpdateEmbedding(ctx, chunk.ID, vec); err != nil {
			logger.Error("update embedding failed", zap.Int64("chunk_id", chunk.ID), zap.Error(err))
			continue
		}
		repaired++
	}
	logger.Info("reembed pass complete", zap.Int("degraded", len(degraded)), zap.Int("repaired", repaired))
	return nil
}
