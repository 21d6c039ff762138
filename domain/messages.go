package domain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageType identifies an outbound pipeline message
type MessageType string

const (
	MessageTypeTTSAudio MessageType = "tts_audio"
	MessageTypeError    MessageType = "error"
)

// Envelope is the outbound frame written to a client: {type, data, timestamp}.
type Envelope struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"` // epoch milliseconds
}

// AudioChunk carries one synthesized slice of the reply
type AudioChunk struct {
	Audio       string `json:"audio"` // base64 encoded
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	IsLast      bool   `json:"isLast"`
}

// ErrorPayload is the data of an error envelope
type ErrorPayload struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewAudioChunkMessage wraps encoded audio for chunk index of total.
func NewAudioChunkMessage(audio []byte, index, total int, at time.Time) Envelope {
	return Envelope{
		Type: MessageTypeTTSAudio,
		Data: AudioChunk{
			Audio:       base64.StdEncoding.EncodeToString(audio),
			ChunkIndex:  index,
			TotalChunks: total,
			IsLast:      index == total-1,
		},
		Timestamp: at.UnixMilli(),
	}
}

// NewErrorMessage builds the single error envelope of a failed run.
func NewErrorMessage(pe *PipelineError, at time.Time) Envelope {
	return Envelope{
		Type: MessageTypeError,
		Data: ErrorPayload{
			Code:    pe.Code,
			Message: pe.Message,
			Details: pe.Details,
		},
		Timestamp: at.UnixMilli(),
	}
}

// RequestType is the discriminator of inbound client messages
type RequestType string

const (
	RequestTypeCancel RequestType = "cancel"
	RequestTypePrompt RequestType = "prompt"
)

// ErrTextRequired is returned for prompt messages without a string text field.
var ErrTextRequired = errors.New("text field required")

// ClientRequest is an inbound message on an open connection
type ClientRequest struct {
	ReqType RequestType `json:"reqType"`
	Text    string      `json:"text,omitempty"`
	Voice   string      `json:"voice,omitempty"`
}

// ParseClientRequest decodes and validates an inbound frame. Prompt text is
// returned trimmed.
func ParseClientRequest(raw []byte) (ClientRequest, error) {
	var wire struct {
		ReqType RequestType     `json:"reqType"`
		Text    json.RawMessage `json:"text"`
		Voice   interface{}     `json:"voice"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ClientRequest{}, fmt.Errorf("invalid JSON format: %w", err)
	}

	req := ClientRequest{ReqType: wire.ReqType}
	switch wire.ReqType {
	case RequestTypeCancel:
		return req, nil
	case RequestTypePrompt:
		if len(wire.Text) == 0 || string(wire.Text) == "null" {
			return req, ErrTextRequired
		}
		var text string
		if err := json.Unmarshal(wire.Text, &text); err != nil {
			return req, ErrTextRequired
		}
		req.Text = strings.TrimSpace(text)
		if voice, ok := wire.Voice.(string); ok {
			req.Voice = voice
		}
		return req, nil
	default:
		return req, fmt.Errorf("unsupported reqType: %q", wire.ReqType)
	}
}

// StatusReply acknowledges an inbound message, e.g. {"status":"thinking"}.
type StatusReply struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId,omitempty"`
}

// ErrorReply rejects an inbound message at the connection boundary.
type ErrorReply struct {
	Error string `json:"error"`
}

// Status values sent back to the client outside of pipeline runs.
const (
	StatusConnected   = "connected"
	StatusMsgReceived = "msg received"
	StatusThinking    = "thinking"
)
