package service

import (
	"context"

	"github.com/tieubaoca/ragchat-be/types"
)

// AIService streams a chat completion for the given message sequence,
// forwarding fragments to the handler in emission order.
type AIService interface {
	ChatStream(ctx context.Context, messages []types.Message, handler types.StreamHandler) error
}
