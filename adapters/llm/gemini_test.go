package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"github.com/satriahrh/arunika-relay/domain"
	"github.com/satriahrh/arunika-relay/domain/repositories"
)

func TestValidateGeminiConfig(t *testing.T) {
	assert.Error(t, ValidateGeminiConfig(GeminiConfig{}))
	assert.Error(t, ValidateGeminiConfig(GeminiConfig{APIKey: "k", Temperature: 3}))
	assert.Error(t, ValidateGeminiConfig(GeminiConfig{APIKey: "k", MaxOutputTokens: -1}))
	assert.NoError(t, ValidateGeminiConfig(GeminiConfig{APIKey: "k", Temperature: 0.4}))
}

func TestConvertMessages(t *testing.T) {
	got := ConvertMessages([]repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: "be brief"},
		{Role: repositories.UserRole, Content: "hello"},
		{Role: repositories.AssistantRole, Content: "hi"},
	})

	require.Len(t, got, 3)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "user", got[1].Role)
	assert.Equal(t, "model", got[2].Role)
	assert.Equal(t, "hello", got[1].Parts[0].Text)

	assert.Empty(t, ConvertMessages(nil))
}

func TestExtractText(t *testing.T) {
	assert.Equal(t, "", ExtractText(nil))
	assert.Equal(t, "", ExtractText(&genai.GenerateContentResponse{}))
	assert.Equal(t, "", ExtractText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "Hello, "}, nil, {Text: "world."}}},
		}},
	}
	assert.Equal(t, "Hello, world.", ExtractText(resp))
}

func TestConvertError(t *testing.T) {
	t.Run("api error keeps status", func(t *testing.T) {
		err := ConvertError(genai.APIError{Code: http.StatusBadRequest, Message: "contents must not be empty"})

		var upstream *domain.UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
		assert.Equal(t, "contents must not be empty", upstream.Message)
		assert.True(t, upstream.IsClientError())
	})

	t.Run("transport error has no status", func(t *testing.T) {
		err := ConvertError(errors.New("connection reset"))

		var upstream *domain.UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.Zero(t, upstream.StatusCode)
		assert.False(t, upstream.IsClientError())
	})

	t.Run("context errors pass through", func(t *testing.T) {
		assert.ErrorIs(t, ConvertError(context.Canceled), context.Canceled)
	})
}

func TestMockGeminiClient_Complete(t *testing.T) {
	client := NewMockGeminiClient()

	res, err := client.Complete(context.Background(), repositories.NewPromptRequest("a story"))
	require.NoError(t, err)
	assert.Contains(t, res.Text, "a story")

	_, err = client.Complete(context.Background(), repositories.CompletionRequest{})
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
}

type capturedRequest struct {
	path   string
	apiKey string
	body   map[string]interface{}
}

// newTestGemini starts a fake Gemini endpoint answering every request with
// status and body, and returns an adapter pointed at it.
func newTestGemini(t *testing.T, config GeminiConfig, status int, body string) (*GeminiLLM, <-chan capturedRequest) {
	t.Helper()

	requests := make(chan capturedRequest, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		captured := capturedRequest{path: r.URL.Path, apiKey: r.Header.Get("x-goog-api-key")}
		_ = json.Unmarshal(raw, &captured.body)
		select {
		case requests <- captured:
		default:
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	config.APIKey = "test-key"
	config.BaseURL = server.URL
	gemini, err := NewGeminiLLM(context.Background(), config, zaptest.NewLogger(t))
	require.NoError(t, err)
	return gemini, requests
}

const okResponse = `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello "},{"text":"there."}]}}]}`

func generationConfig(t *testing.T, req capturedRequest) map[string]interface{} {
	t.Helper()
	config, ok := req.body["generationConfig"].(map[string]interface{})
	require.True(t, ok, "generationConfig missing from %v", req.body)
	return config
}

func TestGeminiLLM_Complete_Defaults(t *testing.T) {
	gemini, requests := newTestGemini(t, GeminiConfig{
		Model:           "gemini-test",
		Temperature:     0.4,
		MaxOutputTokens: 256,
		SystemPrompt:    "Be brief.",
	}, http.StatusOK, okResponse)

	result, err := gemini.Complete(context.Background(), repositories.NewPromptRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", result.Text)
	assert.Equal(t, "gemini-test", result.Model)

	req := <-requests
	assert.True(t, strings.HasSuffix(req.path, "/models/gemini-test:generateContent"), req.path)
	assert.Equal(t, "test-key", req.apiKey)

	config := generationConfig(t, req)
	assert.InDelta(t, 0.4, config["temperature"], 0.0001)
	assert.EqualValues(t, 256, config["maxOutputTokens"])

	system, ok := req.body["systemInstruction"].(map[string]interface{})
	require.True(t, ok, "systemInstruction missing from %v", req.body)
	parts := system["parts"].([]interface{})
	require.Len(t, parts, 1)
	assert.Equal(t, "Be brief.", parts[0].(map[string]interface{})["text"])

	contents := req.body["contents"].([]interface{})
	require.Len(t, contents, 1)
	assert.Equal(t, "user", contents[0].(map[string]interface{})["role"])
}

func TestGeminiLLM_Complete_RequestOverrides(t *testing.T) {
	gemini, requests := newTestGemini(t, GeminiConfig{
		Model:           "gemini-test",
		Temperature:     0.4,
		MaxOutputTokens: 256,
	}, http.StatusOK, okResponse)

	temperature := float32(0.9)
	result, err := gemini.Complete(context.Background(), repositories.CompletionRequest{
		Messages:        []repositories.ChatMessage{{Role: repositories.UserRole, Content: "hi"}},
		Model:           "gemini-override",
		Temperature:     &temperature,
		MaxOutputTokens: 64,
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini-override", result.Model)

	req := <-requests
	assert.True(t, strings.HasSuffix(req.path, "/models/gemini-override:generateContent"), req.path)

	config := generationConfig(t, req)
	assert.InDelta(t, 0.9, config["temperature"], 0.0001)
	assert.EqualValues(t, 64, config["maxOutputTokens"])
	assert.NotContains(t, req.body, "systemInstruction")
}

func TestGeminiLLM_Complete_ClientError(t *testing.T) {
	gemini, _ := newTestGemini(t, GeminiConfig{}, http.StatusBadRequest,
		`{"error":{"code":400,"message":"contents is not specified","status":"INVALID_ARGUMENT"}}`)

	_, err := gemini.Complete(context.Background(), repositories.NewPromptRequest("hi"))

	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
	assert.Equal(t, "gemini", upstream.Service)
	assert.True(t, upstream.IsClientError())
	assert.Contains(t, upstream.Message, "contents is not specified")
}

func TestGeminiLLM_Complete_ServerError(t *testing.T) {
	gemini, _ := newTestGemini(t, GeminiConfig{}, http.StatusServiceUnavailable,
		`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)

	_, err := gemini.Complete(context.Background(), repositories.NewPromptRequest("hi"))

	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
	assert.False(t, upstream.IsClientError())
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 50))
	assert.Equal(t, "héllo", preview("héllo wörld", 5))

	long := strings.Repeat("é", 60)
	got := preview(long, 50)
	assert.Equal(t, strings.Repeat("é", 50), got)
	assert.True(t, utf8.ValidString(got))
}
