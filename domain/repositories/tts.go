package repositories

import "context"

// TextToSpeech abstracts speech synthesis providers
type TextToSpeech interface {
	// ConvertTextToSpeech synthesizes req.Input and returns the encoded audio.
	ConvertTextToSpeech(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// SpeechRequest selects what to synthesize and how. Voice and Model are
// optional; empty values fall back to the provider defaults.
type SpeechRequest struct {
	Input  string `json:"input"`
	Voice  string `json:"voice,omitempty"`
	Model  string `json:"model,omitempty"`
	Format string `json:"format,omitempty"`
}

// WithInput returns a copy of the request carrying different text.
func (r SpeechRequest) WithInput(text string) SpeechRequest {
	r.Input = text
	return r
}
