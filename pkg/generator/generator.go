package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Backend is an adapter for one generative-text API. Implementations return
// the completion text, or ErrBlocked / ErrEmptyCompletion / a transport error.
type Backend interface {
	// GenerateText sends the prompt and returns the completion.
	GenerateText(ctx context.Context, prompt string) (string, error)

	// Provider returns the backend name.
	Provider() string
}

// NewBackend creates a backend for the configured provider.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiBackend(ctx, cfg)
	case "openai":
		return NewOpenAIBackend(cfg), nil
	case "anthropic":
		return NewAnthropicBackend(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// Generator wraps a Backend with the call policy: one attempt, bounded by a
// timeout, every failure normalized to *Failure.
type Generator struct {
	backend Backend
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a generator around backend. A non-positive timeout falls back
// to the default; an unbounded call would stall the per-user serialization.
func New(backend Backend, timeout time.Duration, logger zerolog.Logger) *Generator {
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}

	return &Generator{
		backend: backend,
		timeout: timeout,
		logger:  logger.With().Str("component", "generator").Str("provider", backend.Provider()).Logger(),
	}
}

// Generate sends prompt to the backend. On success the completion text is
// returned; otherwise the error is always a *Failure carrying the reason.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.backend.GenerateText(ctx, prompt)
	elapsed := time.Since(start)

	if err != nil {
		failure := classify(err)
		g.logger.Warn().
			Err(err).
			Str("reason", string(failure.Reason)).
			Dur("elapsed", elapsed).
			Msg("Generation failed")
		return "", failure
	}

	if strings.TrimSpace(text) == "" {
		failure := &Failure{Reason: ReasonEmpty, Err: ErrEmptyCompletion}
		g.logger.Warn().Dur("elapsed", elapsed).Msg("Generation returned empty completion")
		return "", failure
	}

	g.logger.Debug().
		Dur("elapsed", elapsed).
		Int("prompt_len", len(prompt)).
		Int("completion_len", len(text)).
		Msg("Generation succeeded")

	return text, nil
}

// Provider returns the wrapped backend's name.
func (g *Generator) Provider() string {
	return g.backend.Provider()
}

func classify(err error) *Failure {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Failure{Reason: ReasonTimeout, Err: err}
	case errors.Is(err, ErrBlocked):
		return &Failure{Reason: ReasonBlocked, Err: err}
	case errors.Is(err, ErrEmptyCompletion):
		return &Failure{Reason: ReasonEmpty, Err: err}
	default:
		return &Failure{Reason: ReasonTransport, Err: err}
	}
}
