package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/tieubaoca/ragchat-be/types"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiService streams chat completions from the Gemini API. Multiple API
// keys can be supplied; the service rotates to the next key when a call
// fails, which helps with per-key quota exhaustion.
type GeminiService struct {
	apiKeys    []string
	currentKey int
	client     *genai.Client
	model      *genai.GenerativeModel
	modelName  string
	maxTokens  int
	mu         sync.Mutex
}

func NewGeminiService(apiKeys []string, modelName string, maxTokens int) (*GeminiService, error) {
	if len(apiKeys) == 0 {
		return nil, errors.New("no API keys provided")
	}

	service := &GeminiService{
		apiKeys:    apiKeys,
		currentKey: 0,
		modelName:  modelName,
		maxTokens:  maxTokens,
	}

	if err := service.initClient(); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *GeminiService) initClient() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(s.apiKeys[s.currentKey]))
	if err != nil {
		return err
	}
	s.client = client
	s.model = client.GenerativeModel(s.modelName)
	if s.maxTokens > 0 {
		s.model.SetMaxOutputTokens(int32(s.maxTokens))
	}
	return nil
}

func (s *GeminiService) rotateAPIKey() error {
	s.mu.Lock()
	s.currentKey = (s.currentKey + 1) % len(s.apiKeys)
	if err := s.client.Close(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.initClient()
}

// ChatStream streams a completion for the message sequence. The last message
// is sent as the prompt, everything before it becomes chat history. System
// messages are collected into the model's system instruction.
func (s *GeminiService) ChatStream(ctx context.Context, messages []types.Message, handler types.StreamHandler) error {
	if len(messages) == 0 {
		return errors.New("no messages to send")
	}

	chat, prompt := s.buildChat(messages)
	iter := chat.SendMessageStream(ctx, genai.Text(prompt))

	delivered := false
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			// Rotate to the next key; retry only if nothing was forwarded
			// yet, otherwise the client would see duplicated output.
			if rerr := s.rotateAPIKey(); rerr != nil {
				return fmt.Errorf("stream failed and key rotation failed: %v (stream error: %v)", rerr, err)
			}
			if delivered {
				return err
			}
			chat, prompt = s.buildChat(messages)
			iter = chat.SendMessageStream(ctx, genai.Text(prompt))
			resp, err = iter.Next()
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return err
			}
		}

		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				text, ok := part.(genai.Text)
				if !ok || text == "" {
					continue
				}
				delivered = true
				if err := handler(string(text)); err != nil {
					return err
				}
			}
		}
	}
}

func (s *GeminiService) buildChat(messages []types.Message) (*genai.ChatSession, string) {
	// Work on a copy: the per-request system instruction must never be
	// written to the shared model, concurrent calls race on it otherwise.
	s.mu.Lock()
	model := *s.model
	s.mu.Unlock()

	var system string
	history := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages[:len(messages)-1] {
		if msg.Role == types.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += msg.Content
			continue
		}
		history = append(history, &genai.Content{
			Parts: []genai.Part{genai.Text(msg.Content)},
			Role:  toGeminiRole(msg.Role),
		})
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	chat := model.StartChat()
	chat.History = history
	return chat, messages[len(messages)-1].Content
}

func toGeminiRole(role string) string {
	if role == types.RoleAssistant {
		return "model"
	}
	return "user"
}

// GeminiEmbedding maps text to vectors with a Gemini embedding model.
type GeminiEmbedding struct {
	client    *genai.Client
	model     string
	dimension int
}

func NewGeminiEmbedding(ctx context.Context, apiKey, model string, dimension int) (*GeminiEmbedding, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedding{client: client, model: model, dimension: dimension}, nil
}

func (e *GeminiEmbedding) Dimension() int {
	return e.dimension
}

func (e *GeminiEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("no embedding returned")
	}
	vector := res.Embedding.Values
	if len(vector) != e.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vector), e.dimension)
	}
	return vector, nil
}
