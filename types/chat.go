package types

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in the conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the wrapped form of the chat body. The browser UI posts
// a bare JSON array of messages; older clients wrap it in an object.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}
