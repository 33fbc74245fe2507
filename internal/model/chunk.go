package model

// KnowledgeChunk is the unit of the retrieval corpus: a bounded substring of
// a source document plus its embedding. Chunks are immutable once stored;
// the re-embed job replaces only degraded embeddings.
type KnowledgeChunk struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	FileName  string    `json:"file_name"`
}
