package service

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
	"github.com/tieubaoca/ragchat-be/types"
)

// OpenAIService streams chat completions from any OpenAI-compatible server
// (Groq, local LLM servers, ...).
type OpenAIService struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAIService(baseURL, apiKey, model string, maxTokens int) *OpenAIService {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(config)
	return &OpenAIService{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
	}
}

// ChatStream requests a streamed completion and forwards every non-empty
// content delta to the handler, in the order received. The upstream stream
// is always closed, whether the relay finishes, fails, or is canceled.
func (s *OpenAIService) ChatStream(ctx context.Context, messages []types.Message, handler types.StreamHandler) error {
	if len(messages) == 0 {
		return errors.New("no messages to send")
	}

	// Convert our Message type to OpenAI chat messages
	openaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:    toOpenAIRole(msg.Role),
			Content: msg.Content,
		})
	}

	stream, err := s.client.CreateChatCompletionStream(
		ctx,
		openai.ChatCompletionRequest{
			Messages:  openaiMessages,
			Model:     s.model,
			MaxTokens: s.maxTokens,
			Stream:    true,
		},
	)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		// Not every delivered unit carries visible content
		content := resp.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		if err := handler(content); err != nil {
			return err
		}
	}
}

func toOpenAIRole(role string) string {
	switch role {
	case types.RoleSystem:
		return openai.ChatMessageRoleSystem
	case types.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
