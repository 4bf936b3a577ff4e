package database

import (
	"context"

	"github.com/tieubaoca/ragchat-be/types"
)

// ChunkMatch is one similarity-search hit with the original chunk text
// recovered from the record metadata.
type ChunkMatch struct {
	ID       string  // Positional chunk identifier (doc-N)
	Content  string  // Original chunk text
	Distance float32 // Cosine distance to the query vector
}

// VectorDatabase defines the interface for RAG chunk storage
type VectorDatabase interface {
	// EnsureSchema creates the chunk collection if it does not exist.
	// Losing a creation race to a concurrent caller is not an error.
	EnsureSchema(ctx context.Context) error

	// UpsertChunk writes or overwrites one record. Records are addressed by
	// the chunk content, so re-ingesting unchanged text overwrites in place.
	UpsertChunk(ctx context.Context, chunk types.DocumentChunk, vector []float32) error

	// QueryNearest returns the top-K most similar records. No relevance
	// threshold is applied here; that is the caller's decision.
	QueryNearest(ctx context.Context, vector []float32, limit int) ([]ChunkMatch, error)

	// ReInit drops and recreates the chunk collection.
	ReInit(ctx context.Context) error
}
