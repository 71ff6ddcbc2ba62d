package chunker

import (
	"strconv"

	"github.com/google/uuid"
)

// Chunk is a window of a source document.
type Chunk struct {
	ID     string
	Source string
	Text   string
	Index  int
}

// WindowChunker splits text into fixed-size rune windows with overlap.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) *WindowChunker {
	if size <= 0 {
		size = 1500
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &WindowChunker{size: size, overlap: overlap}
}

func (c *WindowChunker) Split(source, text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := c.size - c.overlap
	prefix := uuid.NewString()[:8]
	var chunks []Chunk
	for start, idx := 0, 0; start < len(runes); start, idx = start+step, idx+1 {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			ID:     prefix + ":" + strconv.Itoa(idx),
			Source: source,
			Text:   string(runes[start:end]),
			Index:  idx,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
