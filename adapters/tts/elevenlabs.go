package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika-relay/domain"
	"github.com/satriahrh/arunika-relay/domain/repositories"
)

const (
	serviceName         = "elevenlabs"
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM"   // Rachel voice
	defaultReadSize     = 4096                     // Bytes read from the stream per iteration
	defaultOutputFormat = "mp3_44100_128"          // Self-contained frames the client can decode per chunk
	defaultModelID      = "eleven_multilingual_v2" // Default model ID
	defaultStability    = 0.5                      // Default voice stability
	defaultClarity      = 0.75                     // Default voice clarity/similarity_boost
	defaultTimeout      = 60 * time.Second
)

// Voice IDs and output formats end up in the request URL. Anything outside
// these alphabets could redirect the request to another endpoint.
var (
	voiceIDPattern      = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	outputFormatPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// ElevenLabsConfig holds configuration for the ElevenLabsTTS adapter.
// Required fields:
// - APIKey: Your Eleven Labs API key
// Optional fields fall back to package defaults when zero.
type ElevenLabsConfig struct {
	APIKey       string  // Required: Your Eleven Labs API key
	APIBaseURL   string  // Optional: The base URL for the Eleven Labs API
	VoiceID      string  // Optional: The voice ID to use
	ModelID      string  // Optional: The model ID to use
	OutputFormat string  // Optional: The output format
	Stability    float64 // Optional: Voice stability value between 0 and 1
	Clarity      float64 // Optional: Voice clarity/similarity boost value between 0 and 1
	HTTPClient   *http.Client
}

// ElevenLabsTTS implements TextToSpeech interface using Eleven Labs API
type ElevenLabsTTS struct {
	apiKey       string
	apiBaseURL   string
	voiceID      string
	modelID      string
	outputFormat string
	stability    float64
	clarity      float64
	httpClient   *http.Client
	logger       *zap.Logger
}

// Ensure ElevenLabsTTS implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*ElevenLabsTTS)(nil)

// ElevenLabsVoiceSettings represents voice settings for Eleven Labs API
type ElevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// ElevenLabsRequest represents the request payload for Eleven Labs TTS API
type ElevenLabsRequest struct {
	Text                   string                  `json:"text"`
	ModelID                string                  `json:"model_id"`
	VoiceSettings          ElevenLabsVoiceSettings `json:"voice_settings"`
	ApplyTextNormalization string                  `json:"apply_text_normalization,omitempty"`
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}

	if config.Stability < 0 || config.Stability > 1 {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}

	if config.Clarity < 0 || config.Clarity > 1 {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}

	return nil
}

// NewElevenLabsTTS creates a new Eleven Labs TTS instance
func NewElevenLabsTTS(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsTTS, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}

	apiBaseURL := strings.TrimSuffix(config.APIBaseURL, "/")
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
		logger.Info("Using default API base URL", zap.String("apiBaseURL", apiBaseURL))
	}

	voiceID := config.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
		logger.Info("Using default voice ID", zap.String("voiceID", voiceID))
	}

	modelID := config.ModelID
	if modelID == "" {
		modelID = defaultModelID
		logger.Info("Using default model ID", zap.String("modelID", modelID))
	}

	outputFormat := config.OutputFormat
	if outputFormat == "" {
		outputFormat = defaultOutputFormat
		logger.Info("Using default output format", zap.String("outputFormat", outputFormat))
	}

	stability := config.Stability
	if stability == 0 {
		stability = defaultStability
	}

	clarity := config.Clarity
	if clarity == 0 {
		clarity = defaultClarity
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &ElevenLabsTTS{
		apiKey:       config.APIKey,
		apiBaseURL:   apiBaseURL,
		voiceID:      voiceID,
		modelID:      modelID,
		outputFormat: outputFormat,
		stability:    stability,
		clarity:      clarity,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// ConvertTextToSpeech converts req.Input to speech and returns the complete
// encoded audio. Voice, model and format in req override the adapter defaults.
func (e *ElevenLabsTTS) ConvertTextToSpeech(ctx context.Context, req repositories.SpeechRequest) ([]byte, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, &domain.UpstreamError{Service: serviceName, StatusCode: http.StatusBadRequest, Message: "text cannot be empty"}
	}

	voiceID := firstNonEmpty(req.Voice, e.voiceID)
	modelID := firstNonEmpty(req.Model, e.modelID)
	outputFormat := firstNonEmpty(req.Format, e.outputFormat)
	if !voiceIDPattern.MatchString(voiceID) {
		return nil, &domain.UpstreamError{Service: serviceName, StatusCode: http.StatusBadRequest, Message: fmt.Sprintf("invalid voice id %q", voiceID)}
	}
	if !outputFormatPattern.MatchString(outputFormat) {
		return nil, &domain.UpstreamError{Service: serviceName, StatusCode: http.StatusBadRequest, Message: fmt.Sprintf("invalid output format %q", outputFormat)}
	}

	e.logger.Info("Converting text to speech",
		zap.Int("textLength", len(req.Input)),
		zap.String("voiceID", voiceID),
		zap.String("modelID", modelID))

	requestBody, err := json.Marshal(ElevenLabsRequest{
		Text:                   req.Input,
		ModelID:                modelID,
		ApplyTextNormalization: "auto",
		VoiceSettings: ElevenLabsVoiceSettings{
			Stability:       e.stability,
			SimilarityBoost: e.clarity,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s&enable_logging=false",
		e.apiBaseURL, url.PathEscape(voiceID), url.QueryEscape(outputFormat))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	// PCM output requires the audio/pcm accept header
	acceptHeader := "audio/mpeg"
	if strings.HasPrefix(outputFormat, "pcm") {
		acceptHeader = "audio/pcm"
	}
	httpReq.Header.Set("Accept", acceptHeader)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &domain.UpstreamError{Service: serviceName, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		e.logger.Error("Eleven Labs API returned error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(errorBody)))
		return nil, &domain.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    parseErrorMessage(errorBody, resp.Status),
		}
	}

	audio, err := e.readStream(ctx, resp.Body)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Finished reading audio stream",
		zap.Int("totalBytes", len(audio)),
		zap.String("contentType", resp.Header.Get("Content-Type")))

	return audio, nil
}

// readStream drains the streaming response, honouring ctx between reads.
func (e *ElevenLabsTTS) readStream(ctx context.Context, body io.Reader) ([]byte, error) {
	var audio bytes.Buffer
	buffer := make([]byte, defaultReadSize)
	for {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("Context cancelled while streaming audio data")
			return nil, err
		}

		n, err := body.Read(buffer)
		if n > 0 {
			audio.Write(buffer[:n])
		}
		if err == io.EOF {
			return audio.Bytes(), nil
		}
		if err != nil {
			return nil, &domain.UpstreamError{Service: serviceName, Message: fmt.Sprintf("error reading response body: %v", err), Err: err}
		}
	}
}

// parseErrorMessage pulls detail.message out of an API error body.
func parseErrorMessage(body []byte, fallback string) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload.Detail, &detail); err == nil && detail.Message != "" {
			return detail.Message
		}
		var text string
		if err := json.Unmarshal(payload.Detail, &text); err == nil && text != "" {
			return text
		}
	}
	if len(body) > 0 {
		return string(body)
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
