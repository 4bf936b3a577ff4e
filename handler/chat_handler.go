package handler

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/tieubaoca/ragchat-be/types"
)

// ChatService streams an answer for the posted conversation.
type ChatService interface {
	Answer(ctx context.Context, messages []types.Message, handler types.StreamHandler) error
}

type ChatHandler struct {
	chatService ChatService
}

func NewChatHandler(chatService ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// HandleChat relays the streamed answer as a chunked plain-text body: each
// completion fragment is written and flushed as it arrives. A failure before
// the first fragment yields a plain HTTP 500; a failure mid-stream leaves the
// client with a truncated body.
func (h *ChatHandler) HandleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		messages, err := decodeMessages(body)
		if err != nil || len(messages) == 0 {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		flusher, _ := w.(http.Flusher)

		streamed := false
		err = h.chatService.Answer(r.Context(), messages, func(fragment string) error {
			if _, err := io.WriteString(w, fragment); err != nil {
				return err
			}
			streamed = true
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		})
		if err != nil {
			if !streamed {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			// Bytes already went out; the truncated body is the error signal
			log.Println("chat stream aborted:", err)
		}
	}
}

// decodeMessages accepts the bare-array body the UI sends, or the wrapped
// {"messages": [...]} form used by older clients.
func decodeMessages(body []byte) ([]types.Message, error) {
	var messages []types.Message
	if err := json.Unmarshal(body, &messages); err == nil {
		return messages, nil
	}
	var req types.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return req.Messages, nil
}
