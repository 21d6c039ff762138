package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-relay/domain"
	"github.com/satriahrh/arunika-relay/domain/repositories"
	"github.com/satriahrh/arunika-relay/internal/retry"
	"github.com/satriahrh/arunika-relay/internal/textchunk"
)

const tracerName = "github.com/satriahrh/arunika-relay/usecase"

// SessionChecker reports whether a session may still receive work
type SessionChecker interface {
	IsActive(sessionID string) bool
}

// ChainOptions tunes a pipeline run
type ChainOptions struct {
	// ChunkLimit is the soft character cap per synthesized chunk.
	ChunkLimit int
	// MaxAttempts and BaseDelay configure the retrier around each upstream call.
	MaxAttempts int
	BaseDelay   time.Duration
	// Timeout bounds a whole run when positive. Zero leaves runs unbounded.
	Timeout time.Duration
}

// DefaultChainOptions returns the production settings: 4096 character
// chunks and a single attempt per upstream call.
func DefaultChainOptions() ChainOptions {
	return ChainOptions{
		ChunkLimit:  textchunk.DefaultLimit,
		MaxAttempts: 1,
		BaseDelay:   time.Second,
	}
}

// RunReport summarises one ProcessChain invocation
type RunReport struct {
	TotalChunks     int
	ChunksDelivered int
	Cancelled       bool
	DeliveryFailed  bool
	Err             *domain.PipelineError
	Duration        time.Duration
}

// ChainService turns one prompt into a stream of audio chunks for a session
type ChainService struct {
	llm      repositories.LargeLanguageModel
	tts      repositories.TextToSpeech
	sessions SessionChecker
	delivery repositories.DeliveryChannel
	options  ChainOptions
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewChainService creates a new chain service
func NewChainService(
	llm repositories.LargeLanguageModel,
	tts repositories.TextToSpeech,
	sessions SessionChecker,
	delivery repositories.DeliveryChannel,
	options ChainOptions,
	logger *zap.Logger,
) *ChainService {
	defaults := DefaultChainOptions()
	if options.ChunkLimit <= 0 {
		options.ChunkLimit = defaults.ChunkLimit
	}
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = defaults.MaxAttempts
	}
	if options.BaseDelay < 0 {
		options.BaseDelay = defaults.BaseDelay
	}

	return &ChainService{
		llm:      llm,
		tts:      tts,
		sessions: sessions,
		delivery: delivery,
		options:  options,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
}

// ProcessChain completes the prompt, synthesizes the reply chunk by chunk and
// delivers each chunk to the session. Session activity is checked on entry
// and before every chunk; an in-flight upstream call is never interrupted by
// cancellation. Every failure is turned into at most one error message for
// the session. ProcessChain never panics and returns a report instead of an
// error.
func (s *ChainService) ProcessChain(
	ctx context.Context,
	completion repositories.CompletionRequest,
	speech repositories.SpeechRequest,
	sessionID string,
) (report RunReport) {
	ctx, span := s.tracer.Start(ctx, "chain.process",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if s.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.options.Timeout)
		defer cancel()
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Pipeline panicked",
				zap.String("sessionID", sessionID),
				zap.Any("panic", r))
			report.Err = s.reportError(sessionID, fmt.Errorf("pipeline panic: %v", r))
		}
		report.Duration = time.Since(started)

		span.SetAttributes(
			attribute.Int("chunks.total", report.TotalChunks),
			attribute.Int("chunks.delivered", report.ChunksDelivered),
			attribute.Bool("cancelled", report.Cancelled),
		)
		if report.Err != nil {
			span.RecordError(report.Err)
			span.SetStatus(codes.Error, report.Err.Message)
		}

		s.logger.Info("Pipeline run finished",
			zap.String("sessionID", sessionID),
			zap.Int("totalChunks", report.TotalChunks),
			zap.Int("chunksDelivered", report.ChunksDelivered),
			zap.Bool("cancelled", report.Cancelled),
			zap.Bool("deliveryFailed", report.DeliveryFailed),
			zap.Bool("failed", report.Err != nil),
			zap.Duration("duration", report.Duration))
	}()

	if err := s.run(ctx, completion, speech, sessionID, &report); err != nil {
		report.Err = s.reportError(sessionID, err)
	}
	return report
}

func (s *ChainService) run(
	ctx context.Context,
	completion repositories.CompletionRequest,
	speech repositories.SpeechRequest,
	sessionID string,
	report *RunReport,
) error {
	if !s.sessions.IsActive(sessionID) {
		return domain.ErrSessionInactive
	}

	result, err := s.complete(ctx, completion, sessionID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(result.Text) == "" {
		return domain.ErrEmptyCompletion
	}

	speech.Input = result.Text
	chunks := textchunk.Split(speech.Input, s.options.ChunkLimit)
	report.TotalChunks = len(chunks)

	s.logger.Info("Synthesizing reply",
		zap.String("sessionID", sessionID),
		zap.Int("textLength", len(result.Text)),
		zap.Int("totalChunks", len(chunks)))

	for i, chunk := range chunks {
		if !s.sessions.IsActive(sessionID) {
			report.Cancelled = true
			s.logger.Info("Session cancelled, stopping synthesis",
				zap.String("sessionID", sessionID),
				zap.Int("chunkIndex", i))
			return nil
		}

		audio, err := s.synthesize(ctx, speech.WithInput(chunk), sessionID, i)
		if err != nil {
			return fmt.Errorf("synthesize chunk %d of %d: %w", i+1, len(chunks), err)
		}
		if len(audio) == 0 {
			return fmt.Errorf("synthesize chunk %d of %d: %w", i+1, len(chunks), domain.ErrEmptyAudio)
		}

		message := domain.NewAudioChunkMessage(audio, i, len(chunks), s.now())
		if !s.delivery.Deliver(sessionID, message) {
			report.DeliveryFailed = true
			s.logger.Warn("Failed to deliver audio chunk, stopping run",
				zap.String("sessionID", sessionID),
				zap.Int("chunkIndex", i),
				zap.Int("totalChunks", len(chunks)))
			return nil
		}
		report.ChunksDelivered++

		s.logger.Debug("Delivered audio chunk",
			zap.String("sessionID", sessionID),
			zap.Int("chunkIndex", i),
			zap.Int("audioBytes", len(audio)))
	}
	return nil
}

func (s *ChainService) complete(ctx context.Context, req repositories.CompletionRequest, sessionID string) (repositories.CompletionResult, error) {
	ctx, span := s.tracer.Start(ctx, "chain.complete",
		trace.WithAttributes(attribute.Int("messages", len(req.Messages))))
	defer span.End()

	result, err := retry.Do(ctx, func(ctx context.Context) (repositories.CompletionResult, error) {
		return s.llm.Complete(ctx, req)
	}, s.options.MaxAttempts, s.options.BaseDelay, retry.WithNotify(s.logRetry("completion", sessionID)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (s *ChainService) synthesize(ctx context.Context, req repositories.SpeechRequest, sessionID string, index int) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "chain.synthesize",
		trace.WithAttributes(
			attribute.Int("chunk.index", index),
			attribute.Int("chunk.length", len(req.Input)),
		))
	defer span.End()

	audio, err := retry.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return s.tts.ConvertTextToSpeech(ctx, req)
	}, s.options.MaxAttempts, s.options.BaseDelay, retry.WithNotify(s.logRetry("synthesis", sessionID)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return audio, err
}

func (s *ChainService) logRetry(stage, sessionID string) retry.NotifyFunc {
	return func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("Upstream call failed, retrying",
			zap.String("stage", stage),
			zap.String("sessionID", sessionID),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
}

// reportError classifies err and makes one best-effort attempt to tell the
// session about it. A failed delivery is logged and dropped.
func (s *ChainService) reportError(sessionID string, err error) *domain.PipelineError {
	pe := domain.ClassifyError(err)

	logFn := s.logger.Error
	if pe.Kind == domain.KindSessionInactive {
		logFn = s.logger.Debug
	}
	logFn("Pipeline run failed",
		zap.String("sessionID", sessionID),
		zap.String("kind", string(pe.Kind)),
		zap.Int("code", pe.Code),
		zap.Error(err))

	if !s.deliverError(sessionID, pe) {
		s.logger.Warn("Failed to deliver error message",
			zap.String("sessionID", sessionID),
			zap.String("kind", string(pe.Kind)))
	}
	return pe
}

// deliverError runs from the panic handler too, so a panicking delivery
// channel counts as a failed delivery here.
func (s *ChainService) deliverError(sessionID string, pe *domain.PipelineError) (delivered bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Delivery channel panicked",
				zap.String("sessionID", sessionID),
				zap.Any("panic", r))
			delivered = false
		}
	}()
	return s.delivery.Deliver(sessionID, domain.NewErrorMessage(pe, s.now()))
}
