package types

// DocumentChunk is one bounded substring of the source document. IDs are
// positional within a single split run: doc-1, doc-2, ...
type DocumentChunk struct {
	ID      string // Positional chunk identifier
	Content string // The actual text content
}

// DocumentServiceConfig contains configuration options for text chunking
type DocumentServiceConfig struct {
	MaxChunkSize int // Maximum size for text chunks, in characters
	OverlapSize  int // Size of overlap between consecutive chunks, in characters
}
