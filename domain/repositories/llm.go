package repositories

import "context"

// LargeLanguageModel abstracts any text-completion provider
type LargeLanguageModel interface {
	// Complete sends the request and returns the model's reply text.
	// Provider failures are reported as *domain.UpstreamError where a
	// status code is known.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// CompletionRequest is an ordered list of role-tagged messages plus optional
// model selection and sampling parameters. Zero values mean "provider default".
type CompletionRequest struct {
	Messages        []ChatMessage `json:"messages"`
	Model           string        `json:"model,omitempty"`
	Temperature     *float32      `json:"temperature,omitempty"`
	MaxOutputTokens int           `json:"max_output_tokens,omitempty"`
}

// CompletionResult holds the text extracted from the provider reply
type CompletionResult struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)

// NewPromptRequest builds a completion request holding a single user message.
func NewPromptRequest(text string) CompletionRequest {
	return CompletionRequest{
		Messages: []ChatMessage{{Role: UserRole, Content: text}},
	}
}
