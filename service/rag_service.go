package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tieubaoca/ragchat-be/database"
	"github.com/tieubaoca/ragchat-be/types"
)

const ragInstructionFormat = "Base your answers ONLY off of the relevant information and NOTHING else. Relevant Information: %s"

type RAGServiceConfig struct {
	DocumentPath string
	SystemPrompt string
	MaxDistance  float32 // 0 disables the relevance cutoff
}

// RAGService orchestrates one chat turn: keep the source document indexed,
// retrieve the nearest chunk for the latest user query, and stream a
// grounded completion back through the handler.
type RAGService struct {
	documentPath string
	systemPrompt string
	maxDistance  float32

	docService *DocumentService
	embedder   Embedder
	vectorDB   database.VectorDatabase
	ai         AIService

	// Guards the ingestion state shared across requests
	mu         sync.Mutex
	lastDigest [sha256.Size]byte
	indexed    bool
}

func NewRAGService(
	cfg RAGServiceConfig,
	docService *DocumentService,
	embedder Embedder,
	vectorDB database.VectorDatabase,
	ai AIService,
) *RAGService {
	return &RAGService{
		documentPath: cfg.DocumentPath,
		systemPrompt: cfg.SystemPrompt,
		maxDistance:  cfg.MaxDistance,
		docService:   docService,
		embedder:     embedder,
		vectorDB:     vectorDB,
		ai:           ai,
	}
}

// Answer runs the full pipeline for one conversation turn. The last message
// is the user's current query. Fragments of the completion are forwarded to
// the handler in emission order; any error before streaming starts fails the
// whole request.
func (s *RAGService) Answer(ctx context.Context, messages []types.Message, handler types.StreamHandler) error {
	if len(messages) == 0 {
		return errors.New("empty conversation")
	}
	userQuery := messages[len(messages)-1].Content

	text, err := s.docService.LoadDocument(s.documentPath)
	if err != nil {
		return err
	}

	// Ingestion failures are per-chunk and never fail the request; failed
	// chunks are retried on the next turn.
	s.syncDocument(ctx, text)

	queryVector, err := s.embedder.Embed(ctx, userQuery)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := s.vectorDB.QueryNearest(ctx, queryVector, 1)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}
	relevantDocs := s.relevantContext(matches)

	outbound := buildPrompt(s.systemPrompt, messages, relevantDocs, userQuery)
	return s.ai.ChatStream(ctx, outbound, handler)
}

// syncDocument keeps the vector index in step with the document. The digest
// check makes re-ingestion a no-op while the document is unchanged and the
// last sync fully succeeded, so chat turns don't re-embed the same content
// over and over.
func (s *RAGService) syncDocument(ctx context.Context, text string) {
	digest := sha256.Sum256([]byte(text))
	s.mu.Lock()
	upToDate := s.indexed && digest == s.lastDigest
	s.mu.Unlock()
	if upToDate {
		return
	}

	chunks := s.docService.SplitText(text)
	if len(chunks) == 0 {
		log.Println("no chunks were generated from the document text")
		s.markIndexed(digest)
		return
	}

	if err := s.vectorDB.EnsureSchema(ctx); err != nil {
		// Retrieval may still work against whatever records already exist
		log.Println("failed to ensure chunk collection:", err)
		return
	}

	// Fan out embedding+upsert across all chunks and wait for the whole
	// batch. Order between chunks is irrelevant; failures are logged and
	// the affected chunk is left unindexed.
	var wg sync.WaitGroup
	var failed atomic.Bool
	for _, chunk := range chunks {
		wg.Add(1)
		go func(chunk types.DocumentChunk) {
			defer wg.Done()
			vector, err := s.embedder.Embed(ctx, chunk.Content)
			if err != nil {
				log.Printf("error embedding chunk %s: %v", chunk.ID, err)
				failed.Store(true)
				return
			}
			if err := s.vectorDB.UpsertChunk(ctx, chunk, vector); err != nil {
				log.Printf("error upserting chunk %s: %v", chunk.ID, err)
				failed.Store(true)
			}
		}(chunk)
	}
	wg.Wait()

	// Only a fully indexed document counts as synced; a partial batch is
	// retried in full on the next turn, record IDs make that an overwrite.
	if failed.Load() {
		return
	}
	s.markIndexed(digest)
}

func (s *RAGService) markIndexed(digest [sha256.Size]byte) {
	s.mu.Lock()
	s.lastDigest = digest
	s.indexed = true
	s.mu.Unlock()
}

// relevantContext joins the retrieved chunk texts. When a relevance cutoff
// is configured, matches beyond it contribute nothing: generation then runs
// without grounding context rather than with an unrelated chunk.
func (s *RAGService) relevantContext(matches []database.ChunkMatch) string {
	parts := make([]string, 0, len(matches))
	for _, match := range matches {
		if s.maxDistance > 0 && match.Distance > s.maxDistance {
			continue
		}
		parts = append(parts, match.Content)
	}
	return strings.Join(parts, " ")
}

// buildPrompt assembles the outbound message list: the fixed system
// preamble, the entire original conversation, an instruction constraining
// the model to the retrieved context, and a trailing copy of the user query.
func buildPrompt(systemPrompt string, conversation []types.Message, relevantDocs, userQuery string) []types.Message {
	outbound := make([]types.Message, 0, len(conversation)+3)
	outbound = append(outbound, types.Message{Role: types.RoleSystem, Content: systemPrompt})
	outbound = append(outbound, conversation...)
	outbound = append(outbound, types.Message{
		Role:    types.RoleAssistant,
		Content: fmt.Sprintf(ragInstructionFormat, relevantDocs),
	})
	outbound = append(outbound, types.Message{Role: types.RoleUser, Content: userQuery})
	return outbound
}
