package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/satriahrh/arunika-relay/domain"
	"github.com/satriahrh/arunika-relay/domain/repositories"
)

// MockGeminiClient answers without calling any backend. It is used when no
// API key is configured.
type MockGeminiClient struct{}

var _ repositories.LargeLanguageModel = (*MockGeminiClient)(nil)

// NewMockGeminiClient creates a new mock Gemini client
func NewMockGeminiClient() *MockGeminiClient {
	return &MockGeminiClient{}
}

// Complete echoes the last user message back inside a canned reply. An empty
// request is rejected the way the real API rejects it.
func (g *MockGeminiClient) Complete(ctx context.Context, req repositories.CompletionRequest) (repositories.CompletionResult, error) {
	if err := ctx.Err(); err != nil {
		return repositories.CompletionResult{}, err
	}
	if len(req.Messages) == 0 {
		return repositories.CompletionResult{}, &domain.UpstreamError{
			Service:    serviceName,
			StatusCode: http.StatusBadRequest,
			Message:    "contents must not be empty",
		}
	}

	last := req.Messages[len(req.Messages)-1].Content
	var response string
	switch {
	case len(last) > 0:
		response = fmt.Sprintf("Thanks for telling me! You said: %s. What else would you like to talk about?", last)
	default:
		response = "Hello! What would you like to talk about today?"
	}

	return repositories.CompletionResult{Text: response, Model: "mock"}, nil
}
