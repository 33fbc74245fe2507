package service

import (
	"context"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/ai"
	"github.com/ragline/ragline/internal/extract"
	"github.com/ragline/ragline/internal/model"
)

// ContextSeparator joins retrieved chunk texts, nearest first.
const ContextSeparator = "\n---\n"

// VectorStore is the persistence side of the retrieval corpus.
type VectorStore interface {
	Insert(ctx context.Context, chunk *model.KnowledgeChunk) error
	QueryNearest(ctx context.Context, vec []float32, k int) ([]model.KnowledgeChunk, error)
}

// Embedder converts text to a fixed-dimension vector, degrading to the zero
// vector instead of failing.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
	Dimension() int
}

// KnowledgeService drives document ingestion (extract, chunk, embed, store)
// and query-time context retrieval.
type KnowledgeService struct {
	store    VectorStore
	embedder Embedder
	chunker  *ai.Chunker
	pool     *ants.Pool
	topK     int
}

func NewKnowledgeService(store VectorStore, embedder Embedder, chunker *ai.Chunker, pool *ants.Pool, topK int) *KnowledgeService {
	if topK <= 0 {
		topK = 3
	}
	return &KnowledgeService{
		store:    store,
		embedder: embedder,
		chunker:  chunker,
		pool:     pool,
		topK:     topK,
	}
}

// Ingest extracts text from an uploaded document and feeds it through the
// chunk/embed/store pipeline. Returns the number of chunks stored.
func (s *KnowledgeService) Ingest(ctx context.Context, data []byte, fileName string) (int, error) {
	text, err := extract.Text(data, fileName)
	if err != nil {
		return 0, err
	}
	return s.IngestText(ctx, text, fileName)
}

// IngestText is best effort per chunk: a degraded embedding (zero vector)
// or a failed insert never aborts the rest of the batch.
func (s *KnowledgeService) IngestText(ctx context.Context, text, fileName string) (int, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("file", fileName))
	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		logger.Info("nothing to ingest")
		return 0, nil
	}

	vecs := make([][]float32, len(chunks))
	var wg sync.WaitGroup
	for i, chunkText := range chunks {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			vecs[i] = s.embedder.Embed(ctx, chunkText)
		}
		if s.pool != nil {
			if err := s.pool.Submit(task); err == nil {
				continue
			}
		}
		task()
	}
	wg.Wait()

	stored := 0
	for i, chunkText := range chunks {
		chunk := &model.KnowledgeChunk{
			Content:   chunkText,
			Embedding: vecs[i],
			FileName:  fileName,
		}
		if err := s.store.Insert(ctx, chunk); err != nil {
			logger.Error("store chunk failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		stored++
	}
	logger.Info("document ingested", zap.Int("chunks", len(chunks)), zap.Int("stored", stored))
	return stored, nil
}

// SearchContext embeds the query, fetches the nearest chunks and joins their
// text nearest-first. An empty corpus yields an empty string: "no
// augmentation available", not an error.
func (s *KnowledgeService) SearchContext(ctx context.Context, query string) (string, error) {
	vec := s.embedder.Embed(ctx, query)
	chunks, err := s.store.QueryNearest(ctx, vec, s.topK)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, chunk.Content)
	}
	return strings.Join(parts, ContextSeparator), nil
}
