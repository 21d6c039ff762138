package speech

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika-relay/domain"
	"github.com/satriahrh/arunika-relay/domain/repositories"
)

// MockTextToSpeech is an offline implementation for text-to-speech
type MockTextToSpeech struct {
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*MockTextToSpeech)(nil)

// NewMockTextToSpeech creates a new mock text-to-speech service
func NewMockTextToSpeech(logger *zap.Logger) *MockTextToSpeech {
	return &MockTextToSpeech{
		logger: logger,
	}
}

// ConvertTextToSpeech returns deterministic fake audio sized after the text
func (t *MockTextToSpeech) ConvertTextToSpeech(ctx context.Context, req repositories.SpeechRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Input) == "" {
		return nil, &domain.UpstreamError{Service: "mock-tts", StatusCode: http.StatusBadRequest, Message: "text cannot be empty"}
	}

	t.logger.Info("Processing text-to-speech",
		zap.Int("textLength", len(req.Input)),
		zap.String("voice", req.Voice))

	// Simulate audio size proportional to text length
	mockAudio := make([]byte, len(req.Input)*100)
	for i := range mockAudio {
		mockAudio[i] = byte(i % 256)
	}

	return mockAudio, nil
}
