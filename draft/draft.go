// Package draft generates and iterates the contestación document from a
// completed redaction form. Generation is a streaming operation: the caller
// consumes the token stream live while the full accumulated text is written
// back to the draft record exactly once, on stream end.
package draft

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/sweetpotato0/lexia/casectx"
	"github.com/sweetpotato0/lexia/contestacion"
	"github.com/sweetpotato0/lexia/decision"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
	"github.com/sweetpotato0/lexia/intent"
	"github.com/sweetpotato0/lexia/message"
	"github.com/sweetpotato0/lexia/orchestrator"
	"github.com/sweetpotato0/lexia/pkg/logging"
	"github.com/sweetpotato0/lexia/prompt"
)

// Record is one persisted draft.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	CaseID    string    `json:"case_id,omitempty"`
	CallerID  string    `json:"caller_id"`
	Content   string    `json:"content"`
	Provider  string    `json:"provider"`
	Iteration int       `json:"iteration"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists drafts. Save is called once per generation, never per chunk.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
}

// Request describes one draft generation or iteration.
type Request struct {
	CallerID      string
	SessionID     string
	CaseID        string
	Form          *contestacion.FormData
	CaseContext   *casectx.CaseContext
	PreviousDraft string
	Instruction   string
	Iteration     int
}

// Generator runs draft generation through the streaming orchestrator.
type Generator struct {
	orch    *orchestrator.Orchestrator
	store   Store
	prompts *prompt.Manager
	builder *decision.Builder
	logger  *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithStore sets the draft store written once per completed stream.
func WithStore(s Store) GeneratorOption {
	return func(g *Generator) {
		g.store = s
	}
}

// WithPrompts overrides the prompt catalog.
func WithPrompts(m *prompt.Manager) GeneratorOption {
	return func(g *Generator) {
		if m != nil {
			g.prompts = m
		}
	}
}

// WithBuilder replaces the decision builder, carrying any configured model
// overrides into draft generation.
func WithBuilder(b *decision.Builder) GeneratorOption {
	return func(g *Generator) {
		g.builder = b
	}
}

// NewGenerator creates a draft generator on top of an orchestrator.
func NewGenerator(orch *orchestrator.Orchestrator, opts ...GeneratorOption) *Generator {
	g := &Generator{
		orch:    orch,
		prompts: prompt.DefaultCatalog(),
		logger:  logging.WithComponent("draft"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.builder == nil {
		g.builder = decision.NewBuilder(decision.WithPrompts(g.prompts))
	}
	return g
}

// Run is a live draft generation. The record on Done carries the persisted
// draft, or the terminal error.
type Run struct {
	Stream iter.Seq2[string, error]
	Done   <-chan Outcome
}

// Outcome is delivered once the generation finished and was persisted.
type Outcome struct {
	Record *Record
	Err    error
}

// Generate starts a draft generation. With both PreviousDraft and Instruction
// set, the call is framed as a revision of the prior draft: that text goes
// into the model input verbatim and the instruction steers the change.
func (g *Generator) Generate(ctx context.Context, req *Request) (*Run, error) {
	if req == nil || strings.TrimSpace(req.CallerID) == "" {
		return nil, lexiaerrors.New(lexiaerrors.KindUnauthenticated, "missing caller identity")
	}
	if req.Form == nil || len(req.Form.Entries) == 0 {
		return nil, lexiaerrors.New(lexiaerrors.KindValidation, "draft generation requires a completed form")
	}
	revision := req.PreviousDraft != "" && req.Instruction != ""
	if req.PreviousDraft != "" && req.Instruction == "" {
		return nil, lexiaerrors.New(lexiaerrors.KindValidation, "iterating a draft requires an instruction")
	}

	cls := intent.Classification{
		Intent:       intent.IntentDrafting,
		Credits:      intent.CreditsFor(intent.IntentDrafting),
		NeedsContext: !req.CaseContext.Empty(),
	}
	dec, err := g.builder.Finalize(cls, req.CaseContext, req.CallerID)
	if err != nil {
		return nil, err
	}
	if revision {
		system, rerr := g.prompts.Render(prompt.SystemDraftRevision, map[string]any{
			"Context": req.CaseContext.PromptBlock(),
		})
		if rerr != nil {
			return nil, lexiaerrors.Wrap(lexiaerrors.KindInternal, "render revision prompt", rerr)
		}
		dec.SystemPrompt = system
	}

	msgs := []*message.Message{message.NewMessage(message.RoleUser, g.renderInput(req, revision))}

	orun, err := g.orch.Run(ctx, msgs, dec, nil)
	if err != nil {
		return nil, err
	}

	done := make(chan Outcome, 1)
	go g.persist(ctx, req, orun, done)

	return &Run{Stream: orun.Stream, Done: done}, nil
}

// persist waits for the orchestrator's audit path and writes the draft
// record in a single save.
func (g *Generator) persist(ctx context.Context, req *Request, orun *orchestrator.Run, done chan<- Outcome) {
	result := <-orun.Done
	if result.Err != nil {
		done <- Outcome{Err: result.Err}
		return
	}

	rec := &Record{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		CaseID:    req.CaseID,
		CallerID:  req.CallerID,
		Content:   result.Text,
		Provider:  result.Decision.ServedBy,
		Iteration: req.Iteration,
		CreatedAt: time.Now().UTC(),
	}

	if g.store != nil {
		if err := g.store.Save(context.WithoutCancel(ctx), rec); err != nil {
			g.logger.Error("draft save failed", "session_id", req.SessionID, "error", err)
			done <- Outcome{Record: rec, Err: lexiaerrors.Wrap(lexiaerrors.KindPersistence,
				"draft generated but not saved", err)}
			return
		}
	}

	done <- Outcome{Record: rec}
}

// renderInput builds the user message for the model.
func (g *Generator) renderInput(req *Request, revision bool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Tipo de reclamación: %s\n", req.Form.ClaimType)
	if req.Form.Variant != "" {
		fmt.Fprintf(&sb, "Variante estructural: %s\n", req.Form.Variant)
	}
	sb.WriteString("\nPosturas del letrado por bloque:\n")
	for _, e := range req.Form.Entries {
		if e.NoAplica {
			fmt.Fprintf(&sb, "- %s: no aplica\n", e.Title)
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s", e.Title, e.Posture)
		if e.Justification != "" {
			fmt.Fprintf(&sb, " — %s", e.Justification)
		}
		if len(e.Evidence) > 0 {
			fmt.Fprintf(&sb, " (prueba: %s)", strings.Join(e.Evidence, ", "))
		}
		sb.WriteString("\n")
	}

	if revision {
		sb.WriteString("\nBorrador anterior:\n---\n")
		sb.WriteString(req.PreviousDraft)
		sb.WriteString("\n---\n")
		fmt.Fprintf(&sb, "\nInstrucción de revisión: %s\n", req.Instruction)
	}

	return sb.String()
}

// RenderHTML converts a markdown draft to HTML for preview.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", lexiaerrors.Wrap(lexiaerrors.KindInternal, "render draft html", err)
	}
	return buf.String(), nil
}
