// Package orchestrator executes a finalized decision against the configured
// model providers in priority order, with bounded fallback on transient
// failures, a tee feeding both the live client stream and the audit path, and
// a usage record written once the stream completes.
package orchestrator

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetpotato0/lexia/audit"
	"github.com/sweetpotato0/lexia/decision"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
	"github.com/sweetpotato0/lexia/message"
	"github.com/sweetpotato0/lexia/pkg/logging"
	"github.com/sweetpotato0/lexia/pkg/telemetry"
	"github.com/sweetpotato0/lexia/provider"
	"github.com/sweetpotato0/lexia/tokenizer"
)

// UsageRecorder persists consumption after a completed stream. Satisfied by
// credits.Gate.
type UsageRecorder interface {
	Record(ctx context.Context, rec *audit.UsageRecord) error
}

// Result is delivered on Run.Done after the audit path finishes.
type Result struct {
	Decision decision.Decision // carries the serving provider
	Text     string            // full captured response
	Tokens   int
	Err      error
}

// Run is a live orchestration: one client stream plus a completion signal.
type Run struct {
	// Stream is the live token stream, consumable exactly once.
	Stream iter.Seq2[string, error]

	// Done receives exactly one Result after the audit write completes,
	// regardless of whether the client kept listening.
	Done <-chan Result
}

// Orchestrator drives provider fallback and the stream tee.
type Orchestrator struct {
	providers      []provider.Provider
	maxAttempts    int
	attemptTimeout time.Duration
	recorder       UsageRecorder
	tokens         tokenizer.Counter
	logger         *slog.Logger
	tracer         trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProviders sets the fallback chain in priority order.
func WithProviders(providers ...provider.Provider) Option {
	return func(o *Orchestrator) {
		o.providers = providers
	}
}

// WithMaxAttempts bounds the total number of provider attempts.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithAttemptTimeout sets the wall-clock budget for one provider attempt.
// Exceeding it counts as a transient failure eligible for fallback.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// WithRecorder sets the usage recorder invoked after stream completion.
func WithRecorder(r UsageRecorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithTokenCounter sets the token counter used for usage records.
func WithTokenCounter(c tokenizer.Counter) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.tokens = c
		}
	}
}

// WithLogger overrides the orchestrator logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		maxAttempts:    3,
		attemptTimeout: 45 * time.Second,
		tokens:         tokenizer.Approx{},
		logger:         logging.WithComponent("orchestrator"),
		tracer:         otel.Tracer("lexia/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run starts the orchestration. Validation failures are returned immediately;
// provider work happens on a background goroutine feeding the tee.
func (o *Orchestrator) Run(ctx context.Context, msgs []*message.Message, dec decision.Decision, tools []map[string]any) (*Run, error) {
	if len(o.providers) == 0 {
		return nil, lexiaerrors.New(lexiaerrors.KindInternal, "no providers configured")
	}
	if len(msgs) == 0 {
		return nil, lexiaerrors.New(lexiaerrors.KindValidation, "no messages to send")
	}

	req := &provider.Request{
		SystemPrompt: dec.SystemPrompt,
		Messages:     message.CloneMessages(msgs),
		Tools:        tools,
		Model:        dec.Model,
		Temperature:  dec.Temperature,
		MaxTokens:    dec.MaxTokens,
	}

	tee := NewTee()
	done := make(chan Result, 1)

	go o.drive(ctx, req, dec, tee, done)

	return &Run{Stream: tee.Client(), Done: done}, nil
}

// drive is the single upstream reader: it walks the fallback chain, publishes
// chunks through the tee, and finishes the audit path.
func (o *Orchestrator) drive(ctx context.Context, req *provider.Request, dec decision.Decision, tee *Tee, done chan<- Result) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(
			attribute.String("lexia.intent", string(dec.Intent)),
			attribute.String("lexia.model", dec.Model),
			attribute.String("lexia.trace_id", dec.TraceID),
		))

	final, err := o.attempt(ctx, req, dec, tee)
	tee.CloseWith(ctx, err)

	// The audit capture is complete at this point; a client disconnect from
	// here on no longer affects persistence.
	text, _ := tee.AuditText()
	result := Result{Decision: final, Text: text, Err: err}

	if err == nil && o.recorder != nil {
		result.Tokens = o.tokens.Count(text)
		rec := &audit.UsageRecord{
			CallerID: final.CallerID,
			TraceID:  final.TraceID,
			Intent:   final.Intent,
			Provider: final.ServedBy,
			Credits:  final.Credits,
			Tokens:   result.Tokens,
		}
		if recErr := o.recorder.Record(context.WithoutCancel(ctx), rec); recErr != nil {
			o.logger.Error("usage record failed", "trace_id", final.TraceID, "error", recErr)
			result.Err = recErr
		}
	}

	telemetry.End(span, result.Err)
	done <- result
}

// attempt walks the chain until one provider serves the stream. Only
// transient failures before any chunk reached the consumers trigger fallback;
// the same prompt and tools are reused on every attempt.
func (o *Orchestrator) attempt(ctx context.Context, req *provider.Request, dec decision.Decision, tee *Tee) (decision.Decision, error) {
	chain := o.chainFor(dec.Model)
	var transients []error

	attempts := 0
	for _, p := range chain {
		if attempts >= o.maxAttempts {
			break
		}
		attempts++

		delivered, err := o.streamOne(ctx, p, req, tee)
		if err == nil {
			return dec.WithServedBy(p.Name()), nil
		}

		if !delivered && lexiaerrors.IsTransient(err) && ctx.Err() == nil {
			o.logger.Warn("provider failed, falling back",
				"provider", p.Name(), "trace_id", dec.TraceID, "error", err)
			transients = append(transients, err)
			continue
		}

		// Fatal, mid-stream, or caller-cancelled: no fallback.
		return dec.WithServedBy(p.Name()), err
	}

	return dec, lexiaerrors.Wrap(lexiaerrors.KindProviderTransient,
		"all configured providers failed", errors.Join(transients...))
}

// streamOne runs a single provider attempt under its wall-clock budget and
// reports whether any chunk reached the consumers.
func (o *Orchestrator) streamOne(ctx context.Context, p provider.Provider, req *provider.Request, tee *Tee) (bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()

	delivered := false
	for text, err := range p.Stream(attemptCtx, req) {
		if err != nil {
			if attemptCtx.Err() != nil && ctx.Err() == nil {
				// attempt budget exceeded, not a caller cancellation
				return delivered, provider.Transient(p.Name(), attemptCtx.Err())
			}
			return delivered, err
		}
		if text == "" {
			continue
		}
		if pubErr := tee.Publish(ctx, text); pubErr != nil {
			// caller went away; abort upstream quietly
			cancel()
			return true, lexiaerrors.Wrap(lexiaerrors.KindInternal, "client disconnected", pubErr)
		}
		delivered = true
	}
	return delivered, nil
}

// chainFor orders the configured providers so the decision's model family is
// tried first; the rest keep their configured priority.
func (o *Orchestrator) chainFor(model string) []provider.Provider {
	preferred := familyOf(model)
	if preferred == "" {
		return o.providers
	}

	chain := make([]provider.Provider, 0, len(o.providers))
	for _, p := range o.providers {
		if p.Name() == preferred {
			chain = append(chain, p)
		}
	}
	for _, p := range o.providers {
		if p.Name() != preferred {
			chain = append(chain, p)
		}
	}
	return chain
}

func familyOf(model string) string {
	switch {
	case strings.HasPrefix(model, "claude"):
		return "claude"
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "openai"
	case strings.HasPrefix(model, "gemini"):
		return "gemini"
	default:
		return ""
	}
}
