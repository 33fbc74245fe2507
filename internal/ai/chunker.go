package ai

import (
	"fmt"
	"iter"
)

// Chunker splits document text into fixed-size overlapping segments. The
// sequence is lazy and restartable: each call to Chunks yields from the
// start of the text again.
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker rejects any configuration where the step (chunkSize - overlap)
// is not positive, since iteration would never advance.
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must not be negative, got %d", overlap)
	}
	if chunkSize-overlap <= 0 {
		return nil, fmt.Errorf("overlap %d must be smaller than chunk size %d", overlap, chunkSize)
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Chunks yields segments of text: the first starts at offset 0, each
// subsequent one at previousStart + (chunkSize - overlap), each of length
// min(chunkSize, remaining). Iteration stops once a chunk reaches the end
// of the text. Offsets are in runes, not bytes.
func (c *Chunker) Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		runes := []rune(text)
		if len(runes) == 0 {
			return
		}
		step := c.chunkSize - c.overlap
		for start := 0; start < len(runes); start += step {
			end := start + c.chunkSize
			if end > len(runes) {
				end = len(runes)
			}
			if !yield(string(runes[start:end])) {
				return
			}
			if end == len(runes) {
				return
			}
		}
	}
}

// Split collects the full chunk sequence into a slice.
func (c *Chunker) Split(text string) []string {
	var chunks []string
	for chunk := range c.Chunks(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}
