package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/arunika-relay/domain"
	"github.com/satriahrh/arunika-relay/domain/repositories"
)

const (
	serviceName        = "gemini"
	defaultModel       = "gemini-2.0-flash"
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
	previewRunes       = 50
)

// GeminiConfig holds configuration for the Gemini adapter.
// APIKey is required; zero values of the other fields select defaults.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
	SystemPrompt    string

	// BaseURL overrides the Gemini API endpoint, e.g. for a proxy.
	BaseURL string
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("gemini API key is required")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}
	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("maxOutputTokens must be positive, got %d", config.MaxOutputTokens)
	}
	return nil
}

// GeminiLLM implements the LargeLanguageModel interface using Google's Gemini API
type GeminiLLM struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	maxOutputTokens int
	systemPrompt    string
}

var _ repositories.LargeLanguageModel = (*GeminiLLM)(nil)

// NewGeminiLLM creates a new Gemini LLM instance
func NewGeminiLLM(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiLLM, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      config.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: config.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
	}

	return &GeminiLLM{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		maxOutputTokens: maxOutputTokens,
		systemPrompt:    config.SystemPrompt,
	}, nil
}

// Complete sends the conversation to Gemini and returns the reply text
func (g *GeminiLLM) Complete(ctx context.Context, req repositories.CompletionRequest) (repositories.CompletionResult, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	response, err := g.client.Models.GenerateContent(ctx, model, ConvertMessages(req.Messages), g.buildConfig(req))
	if err != nil {
		g.logger.Error("Failed to generate content",
			zap.String("model", model),
			zap.Int("messages", len(req.Messages)),
			zap.Error(err))
		return repositories.CompletionResult{}, ConvertError(err)
	}

	text := ExtractText(response)
	g.logger.Info("Completion received",
		zap.String("model", model),
		zap.String("response_preview", preview(text, previewRunes)))

	return repositories.CompletionResult{Text: text, Model: model}, nil
}

func (g *GeminiLLM) buildConfig(req repositories.CompletionRequest) *genai.GenerateContentConfig {
	temperature := g.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxOutputTokens := g.maxOutputTokens
	if req.MaxOutputTokens > 0 {
		maxOutputTokens = req.MaxOutputTokens
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(maxOutputTokens),
	}
	if g.systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(g.systemPrompt, genai.RoleUser)
	}
	return config
}

// preview returns at most n runes of text.
func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// ConvertMessages converts repository messages to Gemini contents.
// System messages become user turns; Gemini only knows user and model.
func ConvertMessages(messages []repositories.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		var role genai.Role
		switch msg.Role {
		case repositories.AssistantRole:
			role = genai.RoleModel
		default:
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

// ExtractText concatenates the text parts of the first candidate.
func ExtractText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 {
		return ""
	}
	candidate := response.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// ConvertError maps genai failures onto domain.UpstreamError so the status
// code survives for retry classification.
func ConvertError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &domain.UpstreamError{Service: serviceName, StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &domain.UpstreamError{Service: serviceName, StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.UpstreamError{Service: serviceName, Message: err.Error(), Err: err}
}
