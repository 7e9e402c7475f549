// Package assistant is the request pipeline facade: classify the user's
// intent, enrich with case context, finalize the decision, enforce rate and
// credit limits, then hand off to the streaming orchestrator. The steps run
// strictly in that order; a failure at any gate stops the request before any
// provider tokens are spent.
package assistant

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/lexia/casectx"
	"github.com/sweetpotato0/lexia/credits"
	"github.com/sweetpotato0/lexia/decision"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
	"github.com/sweetpotato0/lexia/intent"
	"github.com/sweetpotato0/lexia/message"
	"github.com/sweetpotato0/lexia/orchestrator"
	"github.com/sweetpotato0/lexia/pkg/logging"
	"github.com/sweetpotato0/lexia/prompt"
	"github.com/sweetpotato0/lexia/ratelimit"
	"github.com/sweetpotato0/lexia/tool"
)

// Request is one chat invocation from the boundary.
type Request struct {
	CallerID string
	CaseID   string
	Messages []*message.Message
}

// Reply is the live response: the orchestrator run plus the decision it was
// served under.
type Reply struct {
	Run      *orchestrator.Run
	Decision decision.Decision
}

// Assistant wires the pipeline.
type Assistant struct {
	orch      *orchestrator.Orchestrator
	builder   *decision.Builder
	gate      *credits.Gate
	limiter   *ratelimit.Limiter
	caseStore casectx.Store
	logger    *slog.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithOrchestrator sets the streaming orchestrator.
func WithOrchestrator(o *orchestrator.Orchestrator) Option {
	return func(a *Assistant) {
		a.orch = o
	}
}

// WithGate enables the credit gate.
func WithGate(g *credits.Gate) Option {
	return func(a *Assistant) {
		a.gate = g
	}
}

// WithLimiter enables per-caller rate limiting.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(a *Assistant) {
		a.limiter = l
	}
}

// WithCaseStore enables case-context enrichment.
func WithCaseStore(s casectx.Store) Option {
	return func(a *Assistant) {
		a.caseStore = s
	}
}

// WithPrompts overrides the prompt catalog used by the decision builder.
func WithPrompts(m *prompt.Manager) Option {
	return func(a *Assistant) {
		if m != nil {
			a.builder = decision.NewBuilder(decision.WithPrompts(m))
		}
	}
}

// WithBuilder replaces the decision builder, carrying any configured model
// overrides into the pipeline.
func WithBuilder(b *decision.Builder) Option {
	return func(a *Assistant) {
		if b != nil {
			a.builder = b
		}
	}
}

// New creates an assistant.
func New(opts ...Option) *Assistant {
	a := &Assistant{
		builder: decision.NewBuilder(),
		logger:  logging.WithComponent("assistant"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask runs the full pipeline for one request and returns the live run. The
// caller consumes Reply.Run.Stream; usage is recorded by the orchestrator
// once the stream completes.
func (a *Assistant) Ask(ctx context.Context, req *Request) (*Reply, error) {
	if req == nil || strings.TrimSpace(req.CallerID) == "" {
		return nil, lexiaerrors.New(lexiaerrors.KindUnauthenticated, "missing caller identity")
	}
	if len(req.Messages) == 0 {
		return nil, lexiaerrors.New(lexiaerrors.KindValidation, "request carries no messages")
	}
	if a.orch == nil {
		return nil, lexiaerrors.New(lexiaerrors.KindInternal, "no orchestrator configured")
	}

	userText := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == message.RoleUser {
			userText = req.Messages[i].Content
			break
		}
	}

	cls := intent.Classify(userText, req.CaseID, req.CallerID)

	var caseCtx *casectx.CaseContext
	if cls.NeedsContext && a.caseStore != nil {
		var err error
		caseCtx, err = casectx.Enrich(ctx, a.caseStore, req.CaseID)
		if err != nil {
			return nil, err
		}
	}

	dec, err := a.builder.Finalize(cls, caseCtx, req.CallerID)
	if err != nil {
		return nil, err
	}

	if a.limiter != nil {
		if err := a.limiter.Check(ctx, req.CallerID); err != nil {
			return nil, err
		}
	}
	if a.gate != nil {
		if err := a.gate.Authorize(ctx, req.CallerID); err != nil {
			return nil, err
		}
	}

	run, err := a.orch.Run(ctx, req.Messages, dec, tool.SchemasFor(cls.Tools))
	if err != nil {
		return nil, err
	}

	a.logger.Info("request dispatched",
		"caller_id", req.CallerID, "intent", dec.Intent,
		"model", dec.Model, "trace_id", dec.TraceID)

	return &Reply{Run: run, Decision: dec}, nil
}
