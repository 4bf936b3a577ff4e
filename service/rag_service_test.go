package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/ragchat-be/database"
	"github.com/tieubaoca/ragchat-be/types"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

type fakeEmbedder struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.failOn[text] {
		return nil, errors.New("embedding unavailable")
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

type fakeVectorDB struct {
	mu          sync.Mutex
	upserts     []types.DocumentChunk
	upsertErr   error
	matches     []database.ChunkMatch
	queryErr    error
	ensureCalls int
}

func (f *fakeVectorDB) EnsureSchema(ctx context.Context) error {
	f.mu.Lock()
	f.ensureCalls++
	f.mu.Unlock()
	return nil
}

func (f *fakeVectorDB) UpsertChunk(ctx context.Context, chunk types.DocumentChunk, vector []float32) error {
	f.mu.Lock()
	f.upserts = append(f.upserts, chunk)
	f.mu.Unlock()
	return f.upsertErr
}

func (f *fakeVectorDB) QueryNearest(ctx context.Context, vector []float32, limit int) ([]database.ChunkMatch, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if limit < len(f.matches) {
		return f.matches[:limit], nil
	}
	return f.matches, nil
}

func (f *fakeVectorDB) ReInit(ctx context.Context) error { return nil }

func (f *fakeVectorDB) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

type fakeAI struct {
	fragments []string
	err       error
	got       []types.Message
}

func (f *fakeAI) ChatStream(ctx context.Context, messages []types.Message, handler types.StreamHandler) error {
	f.got = messages
	for _, fragment := range f.fragments {
		if err := handler(fragment); err != nil {
			return err
		}
	}
	return f.err
}

type ragFixture struct {
	docPath  string
	embedder *fakeEmbedder
	vectorDB *fakeVectorDB
	ai       *fakeAI
	rag      *RAGService
}

func newRAGFixture(t *testing.T, document string, cfg RAGServiceConfig) *ragFixture {
	t.Helper()
	docPath := filepath.Join(t.TempDir(), "knowledge.txt")
	require.NoError(t, writeFile(docPath, document))
	cfg.DocumentPath = docPath
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = "You are a helpful assistant."
	}

	f := &ragFixture{
		docPath:  docPath,
		embedder: &fakeEmbedder{failOn: map[string]bool{}},
		vectorDB: &fakeVectorDB{},
		ai:       &fakeAI{fragments: []string{"Hel", "lo"}},
	}
	f.rag = NewRAGService(
		cfg,
		NewDocumentService(types.DocumentServiceConfig{MaxChunkSize: 300, OverlapSize: 30}),
		f.embedder,
		f.vectorDB,
		f.ai,
	)
	return f
}

func TestAnswerIngestsAndBuildsPrompt(t *testing.T) {
	f := newRAGFixture(t, "A. B. C.", RAGServiceConfig{})
	f.vectorDB.matches = []database.ChunkMatch{{ID: "doc-1", Content: "A. B. C.", Distance: 0.1}}

	conversation := []types.Message{{Role: types.RoleUser, Content: "What is B?"}}

	var received []string
	err := f.rag.Answer(context.Background(), conversation, func(fragment string) error {
		received = append(received, fragment)
		return nil
	})
	require.NoError(t, err)

	// One chunk ingested, the query embedded on top of it
	assert.Equal(t, 1, f.vectorDB.upsertCount())
	assert.Equal(t, "doc-1", f.vectorDB.upserts[0].ID)
	assert.Contains(t, f.embedder.calls, "What is B?")

	// Fragments relayed in order
	assert.Equal(t, []string{"Hel", "lo"}, received)

	// Outbound prompt: system preamble, conversation, instruction with the
	// retrieved chunk verbatim, trailing duplicate of the user query
	outbound := f.ai.got
	require.Len(t, outbound, 4)
	assert.Equal(t, types.RoleSystem, outbound[0].Role)
	assert.Equal(t, conversation[0], outbound[1])
	assert.Equal(t, types.RoleAssistant, outbound[2].Role)
	assert.Contains(t, outbound[2].Content, "A. B. C.")
	assert.Contains(t, outbound[2].Content, "Base your answers ONLY off of the relevant information")
	assert.Equal(t, types.Message{Role: types.RoleUser, Content: "What is B?"}, outbound[3])
}

func TestAnswerFanOutCompleteness(t *testing.T) {
	// Several chunks, every upsert fails: each chunk must still be attempted
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, "Sentence number %d has some words in it. ", i)
	}
	f := newRAGFixture(t, sb.String(), RAGServiceConfig{})
	f.vectorDB.upsertErr = errors.New("index write failed")

	docService := NewDocumentService(types.DocumentServiceConfig{MaxChunkSize: 300, OverlapSize: 30})
	wantChunks := len(docService.SplitText(sb.String()))
	require.Greater(t, wantChunks, 1)

	err := f.rag.Answer(context.Background(), []types.Message{{Role: types.RoleUser, Content: "q"}}, discard)
	require.NoError(t, err, "per-chunk upsert failures must not fail the request")
	assert.Equal(t, wantChunks, f.vectorDB.upsertCount())
	assert.Equal(t, 1, f.vectorDB.ensureCalls)
}

func TestAnswerFailedChunkEmbeddingIsDropped(t *testing.T) {
	f := newRAGFixture(t, "A. B. C.", RAGServiceConfig{})
	f.embedder.failOn["A. B. C."] = true

	err := f.rag.Answer(context.Background(), []types.Message{{Role: types.RoleUser, Content: "q"}}, discard)
	require.NoError(t, err)
	assert.Zero(t, f.vectorDB.upsertCount(), "chunk with failed embedding must not be upserted")
}

func TestAnswerQueryEmbeddingFailureIsFatal(t *testing.T) {
	f := newRAGFixture(t, "A. B. C.", RAGServiceConfig{})
	f.embedder.failOn["What is B?"] = true

	err := f.rag.Answer(context.Background(), []types.Message{{Role: types.RoleUser, Content: "What is B?"}}, discard)
	require.Error(t, err)
	assert.Nil(t, f.ai.got, "completion must not be requested after a query embedding failure")
}

func TestAnswerRetrievalFailureIsFatal(t *testing.T) {
	f := newRAGFixture(t, "A. B. C.", RAGServiceConfig{})
	f.vectorDB.queryErr = errors.New("index down")

	err := f.rag.Answer(context.Background(), []types.Message{{Role: types.RoleUser, Content: "q"}}, discard)
	require.Error(t, err)
	assert.Nil(t, f.ai.got)
}

func TestAnswerUnreadableDocumentIsFatal(t *testing.T) {
	f := newRAGFixture(t, "A. B. C.", RAGServiceConfig{})
	require.NoError(t, os.Remove(f.docPath))

	err := f.rag.Answer(context.Background(), []types.Message{{Role: types.RoleUser, Content: "q"}}, discard)
	require.Error(t, err)
}

func TestAnswerEmptyDocumentSkipsIngestion(t *testing.T) {
	f := newRAGFixture(t, "", RAGServiceConfig{})

	err := f.rag.Answer(context.Background(), []types.Message{{Role: types.RoleUser, Content: "q"}}, discard)
	require.NoError(t, err)
	assert.Zero(t, f.vectorDB.upsertCount())
	assert.Zero(t, f.vectorDB.ensureCalls)

	// With nothing retrieved, generation proceeds without grounding context
	require.Len(t, f.ai.got, 4)
	assert.True(t, strings.HasSuffix(f.ai.got[2].Content, "Relevant Information: "))
}

func TestAnswerEmptyConversationRejected(t *testing.T) {
	f := newRAGFixture(t, "A. B. C.", RAGServiceConfig{})

	err := f.rag.Answer(context.Background(), nil, discard)
	assert.Error(t, err)
}

func TestAnswerSkipsReingestionWhileUnchanged(t *testing.T) {
	f := newRAGFixture(t, "A. B. C.", RAGServiceConfig{})
	conversation := []types.Message{{Role: types.RoleUser, Content: "q"}}

	require.NoError(t, f.rag.Answer(context.Background(), conversation, discard))
	require.NoError(t, f.rag.Answer(context.Background(), conversation, discard))
	assert.Equal(t, 1, f.vectorDB.upsertCount(), "unchanged document must not be re-ingested")

	// Changing the document triggers a fresh ingestion
	require.NoError(t, writeFile(f.docPath, "D. E. F."))
	require.NoError(t, f.rag.Answer(context.Background(), conversation, discard))
	assert.Equal(t, 2, f.vectorDB.upsertCount())
	assert.Equal(t, "D. E. F.", f.vectorDB.upserts[1].Content)
}

func TestAnswerRetriesFailedIngestion(t *testing.T) {
	conversation := []types.Message{{Role: types.RoleUser, Content: "q"}}

	t.Run("embedding outage", func(t *testing.T) {
		f := newRAGFixture(t, "A. B. C.", RAGServiceConfig{})
		f.embedder.failOn["A. B. C."] = true

		require.NoError(t, f.rag.Answer(context.Background(), conversation, discard))
		require.Zero(t, f.vectorDB.upsertCount())

		// Outage over: the unchanged document must be ingested now
		delete(f.embedder.failOn, "A. B. C.")
		require.NoError(t, f.rag.Answer(context.Background(), conversation, discard))
		assert.Equal(t, 1, f.vectorDB.upsertCount())
	})

	t.Run("upsert outage", func(t *testing.T) {
		f := newRAGFixture(t, "A. B. C.", RAGServiceConfig{})
		f.vectorDB.upsertErr = errors.New("index write failed")

		require.NoError(t, f.rag.Answer(context.Background(), conversation, discard))
		require.Equal(t, 1, f.vectorDB.upsertCount())

		f.vectorDB.upsertErr = nil
		require.NoError(t, f.rag.Answer(context.Background(), conversation, discard))
		assert.Equal(t, 2, f.vectorDB.upsertCount(), "failed upsert must be retried on the next turn")
	})
}

func TestAnswerDistanceCutoff(t *testing.T) {
	t.Run("far match dropped", func(t *testing.T) {
		f := newRAGFixture(t, "A. B. C.", RAGServiceConfig{MaxDistance: 0.5})
		f.vectorDB.matches = []database.ChunkMatch{{ID: "doc-1", Content: "A. B. C.", Distance: 0.9}}

		require.NoError(t, f.rag.Answer(context.Background(), []types.Message{{Role: types.RoleUser, Content: "q"}}, discard))
		assert.NotContains(t, f.ai.got[2].Content, "A. B. C.")
	})

	t.Run("near match kept", func(t *testing.T) {
		f := newRAGFixture(t, "A. B. C.", RAGServiceConfig{MaxDistance: 0.5})
		f.vectorDB.matches = []database.ChunkMatch{{ID: "doc-1", Content: "A. B. C.", Distance: 0.2}}

		require.NoError(t, f.rag.Answer(context.Background(), []types.Message{{Role: types.RoleUser, Content: "q"}}, discard))
		assert.Contains(t, f.ai.got[2].Content, "A. B. C.")
	})

	t.Run("cutoff disabled keeps everything", func(t *testing.T) {
		f := newRAGFixture(t, "A. B. C.", RAGServiceConfig{})
		f.vectorDB.matches = []database.ChunkMatch{{ID: "doc-1", Content: "A. B. C.", Distance: 0.99}}

		require.NoError(t, f.rag.Answer(context.Background(), []types.Message{{Role: types.RoleUser, Content: "q"}}, discard))
		assert.Contains(t, f.ai.got[2].Content, "A. B. C.")
	})
}

func TestAnswerMidStreamErrorPropagates(t *testing.T) {
	f := newRAGFixture(t, "A. B. C.", RAGServiceConfig{})
	f.ai.fragments = []string{"Hel"}
	f.ai.err = errors.New("stream broke")

	var received []string
	err := f.rag.Answer(context.Background(), []types.Message{{Role: types.RoleUser, Content: "q"}}, func(fragment string) error {
		received = append(received, fragment)
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, []string{"Hel"}, received)
}

func discard(string) error { return nil }
