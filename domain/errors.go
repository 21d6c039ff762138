package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for expected pipeline conditions.
var (
	// ErrSessionInactive indicates the target session is not registered active.
	ErrSessionInactive = errors.New("session inactive")

	// ErrEmptyCompletion indicates the model reply was blank.
	ErrEmptyCompletion = errors.New("empty completion")

	// ErrEmptyAudio indicates synthesis returned no audio for a chunk.
	ErrEmptyAudio = errors.New("empty audio")
)

// UpstreamError is a failure reported by a completion or synthesis backend.
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsClientError reports whether the upstream rejected the request itself.
// Such failures are not transient and must not be retried.
func (e *UpstreamError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// ErrorKind tags a pipeline failure
type ErrorKind string

const (
	KindSessionInactive ErrorKind = "session_inactive"
	KindUpstreamClient  ErrorKind = "upstream_client"
	KindUpstreamServer  ErrorKind = "upstream_server"
	KindEmptyResult     ErrorKind = "empty_result"
	KindInternal        ErrorKind = "internal"
)

// PipelineError is the classified form of any failure inside a pipeline run.
// It maps one-to-one onto the outbound error envelope.
type PipelineError struct {
	Kind    ErrorKind
	Code    int
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// ClassifyError converts err into a PipelineError. A nil err yields nil.
func ClassifyError(err error) *PipelineError {
	if err == nil {
		return nil
	}

	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}

	switch {
	case errors.Is(err, ErrSessionInactive):
		return &PipelineError{Kind: KindSessionInactive, Code: http.StatusBadRequest, Message: err.Error(), Err: err}
	case errors.Is(err, ErrEmptyCompletion), errors.Is(err, ErrEmptyAudio):
		return &PipelineError{Kind: KindEmptyResult, Code: http.StatusInternalServerError, Message: err.Error(), Err: err}
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		details := map[string]interface{}{"service": upstream.Service}
		if upstream.StatusCode > 0 {
			details["status"] = upstream.StatusCode
		}
		if upstream.IsClientError() {
			return &PipelineError{Kind: KindUpstreamClient, Code: upstream.StatusCode, Message: upstream.Message, Details: details, Err: err}
		}
		code := upstream.StatusCode
		if code == 0 {
			code = http.StatusBadGateway
		}
		return &PipelineError{Kind: KindUpstreamServer, Code: code, Message: upstream.Message, Details: details, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &PipelineError{Kind: KindUpstreamServer, Code: http.StatusGatewayTimeout, Message: err.Error(), Err: err}
	}

	return &PipelineError{Kind: KindInternal, Code: http.StatusInternalServerError, Message: err.Error(), Err: err}
}
