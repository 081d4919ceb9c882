// Package orchestrator is the per-message entry point: it owns the
// append-render-generate-append cycle and guarantees that every inbound
// message produces a reply string, never a fault.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/savta-labs/savta/internal/metrics"
	"github.com/savta-labs/savta/pkg/generator"
	"github.com/savta-labs/savta/pkg/prompt"
	"github.com/savta-labs/savta/pkg/session"
)

const DefaultWindowSize = 5

// Generator produces a completion for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Texts are the fixed user-facing strings the orchestrator returns.
type Texts struct {
	Fallback string
	Greeting string
	Help     string
}

// Orchestrator wires the session store, prompt template, and generator
// together. All state lives in the injected collaborators.
type Orchestrator struct {
	store    *session.Store
	tmpl     *prompt.Template
	gen      Generator
	texts    Texts
	window   int
	archiver *session.Archiver
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithArchiver makes reset and eviction write cleared transcripts to disk.
func WithArchiver(archiver *session.Archiver) Option {
	return func(o *Orchestrator) { o.archiver = archiver }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithWindowSize overrides the context window (default 5 turns).
func WithWindowSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.window = n
		}
	}
}

// New creates an orchestrator.
func New(store *session.Store, tmpl *prompt.Template, gen Generator, texts Texts, logger zerolog.Logger, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if tmpl == nil {
		return nil, fmt.Errorf("prompt template is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}

	o := &Orchestrator{
		store:  store,
		tmpl:   tmpl,
		gen:    gen,
		texts:  texts,
		window: DefaultWindowSize,
		logger: logger.With().Str("component", "orchestrator").Logger(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// HandleMessage records the user's message, asks the backend for a reply,
// and returns the text to send back. Concurrent messages from the same user
// are serialized on the store's per-user guard so appends never interleave;
// different users proceed independently. A failed generation leaves the
// user's message in history, appends nothing else, and returns the fallback.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID int64, text string) string {
	guard := o.store.Guard(userID)
	guard.Lock()
	defer guard.Unlock()

	logger := o.logger.With().
		Int64("user_id", userID).
		Str("request_id", uuid.NewString()).
		Logger()

	if o.metrics != nil {
		o.metrics.MessagesReceivedTotal.Inc()
	}

	o.store.Append(userID, session.SpeakerUser, text)
	o.updateSessionsGauge()

	// A missing message body never reaches the backend; the turn is still
	// recorded so the next message has correct context.
	if strings.TrimSpace(text) == "" {
		logger.Warn().Msg("Empty inbound message, replying with fallback")
		return o.fallback("empty_input")
	}

	window := o.store.Window(userID, o.window)
	rendered := o.tmpl.Render(window)

	start := time.Now()
	reply, err := o.gen.Generate(ctx, rendered)
	elapsed := time.Since(start)

	if o.metrics != nil {
		o.metrics.GenerationDuration.Observe(elapsed.Seconds())
	}

	if err != nil {
		reason := generator.ReasonOf(err)
		logger.Warn().
			Err(err).
			Str("reason", string(reason)).
			Dur("elapsed", elapsed).
			Msg("Generation failed, replying with fallback")
		return o.fallback(string(reason))
	}

	o.store.Append(userID, session.SpeakerAssistant, reply)

	logger.Debug().
		Int("window", len(window)).
		Dur("elapsed", elapsed).
		Msg("Reply generated")

	if o.metrics != nil {
		o.metrics.RepliesTotal.WithLabelValues("reply").Inc()
	}

	return reply
}

// ResetConversation clears the user's history and returns the greeting.
// Idempotent; a cleared transcript is archived when an archiver is set.
func (o *Orchestrator) ResetConversation(userID int64) string {
	guard := o.store.Guard(userID)
	guard.Lock()
	defer guard.Unlock()

	cleared := o.store.Reset(userID)
	o.updateSessionsGauge()

	if o.archiver != nil && len(cleared) > 0 {
		if err := o.archiver.Archive(userID, cleared); err != nil {
			o.logger.Warn().Err(err).Int64("user_id", userID).Msg("Failed to archive transcript")
		}
	}

	if o.metrics != nil {
		o.metrics.SessionResetsTotal.Inc()
	}

	o.logger.Info().Int64("user_id", userID).Int("cleared", len(cleared)).Msg("Conversation reset")

	return o.texts.Greeting
}

// HelpText returns the static informational block.
func (o *Orchestrator) HelpText() string {
	return o.texts.Help
}

func (o *Orchestrator) fallback(reason string) string {
	if o.metrics != nil {
		o.metrics.GenerationFailuresTotal.WithLabelValues(reason).Inc()
		o.metrics.RepliesTotal.WithLabelValues("fallback").Inc()
	}
	return o.texts.Fallback
}

func (o *Orchestrator) updateSessionsGauge() {
	if o.metrics != nil {
		o.metrics.SessionsActive.Set(float64(o.store.Count()))
	}
}
