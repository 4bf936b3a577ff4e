package service

import (
	"fmt"
	"os"
	"strings"

	"github.com/tieubaoca/ragchat-be/types"
)

// DocumentService turns one raw text document into an ordered sequence of
// overlapping chunks suitable for independent embedding.
type DocumentService struct {
	maxChunkSize int // Maximum size of each text chunk
	overlapSize  int // Size of overlap between chunks
}

var DefaultDocumentServiceConfig = types.DocumentServiceConfig{
	MaxChunkSize: 300,
	OverlapSize:  30,
}

// NewDocumentService creates a new document service with configurable chunk sizes
func NewDocumentService(config types.DocumentServiceConfig) *DocumentService {
	if config.MaxChunkSize <= 0 {
		config.MaxChunkSize = DefaultDocumentServiceConfig.MaxChunkSize
	}
	if config.OverlapSize < 0 {
		config.OverlapSize = 0
	}
	if config.OverlapSize >= config.MaxChunkSize {
		config.OverlapSize = config.MaxChunkSize / 2
	}
	return &DocumentService{
		maxChunkSize: config.MaxChunkSize,
		overlapSize:  config.OverlapSize,
	}
}

// LoadDocument reads the source document from disk.
func (s *DocumentService) LoadDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read document %s: %w", path, err)
	}
	return string(data), nil
}

// SplitText splits text into overlapping chunks with proper sentence boundaries.
// Chunk IDs are positional: doc-1, doc-2, ... The split is deterministic for a
// fixed input and configuration. An empty document yields no chunks.
func (s *DocumentService) SplitText(text string) []types.DocumentChunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// Budgets are in characters, and a cut must never land mid-rune
	runes := []rune(text)
	textLen := len(runes)
	if textLen <= s.maxChunkSize {
		return []types.DocumentChunk{{ID: "doc-1", Content: text}}
	}

	var chunks []types.DocumentChunk
	appendChunk := func(content string) {
		content = strings.TrimSpace(content)
		if content != "" {
			chunks = append(chunks, types.DocumentChunk{
				ID:      fmt.Sprintf("doc-%d", len(chunks)+1),
				Content: content,
			})
		}
	}

	currentPos := 0
	for currentPos < textLen {
		chunkEnd := currentPos + s.maxChunkSize
		if chunkEnd >= textLen {
			// Last chunk
			appendChunk(string(runes[currentPos:]))
			break
		}

		// Find nearest sentence end within the budget
		sentenceEnd := chunkEnd
		for i := chunkEnd - 1; i > currentPos; i-- {
			if isSentenceTerminator(runes[i]) {
				sentenceEnd = i + 1
				break
			}
		}

		// If no sentence end found, fall back to a word boundary
		if sentenceEnd == chunkEnd {
			for i := chunkEnd; i > currentPos; i-- {
				if runes[i] == ' ' {
					sentenceEnd = i
					break
				}
			}
		}

		appendChunk(string(runes[currentPos:sentenceEnd]))

		// Next chunk starts overlapSize characters before this chunk's end.
		// Ensure we make progress even when the overlap swallows the chunk.
		next := sentenceEnd - s.overlapSize
		if next <= currentPos {
			next = sentenceEnd
		}
		currentPos = next
	}

	return chunks
}

func isSentenceTerminator(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}
