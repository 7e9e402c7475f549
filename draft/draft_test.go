package draft

import (
	"context"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweetpotato0/lexia/casectx"
	"github.com/sweetpotato0/lexia/contestacion"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
	"github.com/sweetpotato0/lexia/orchestrator"
	"github.com/sweetpotato0/lexia/provider"
)

// capturingProvider records every request it serves.
type capturingProvider struct {
	mu       sync.Mutex
	requests []*provider.Request
	chunks   []string
}

func (p *capturingProvider) Name() string { return "claude" }

func (p *capturingProvider) Stream(_ context.Context, req *provider.Request) iter.Seq2[string, error] {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	return func(yield func(string, error) bool) {
		for _, c := range p.chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (p *capturingProvider) lastRequest(t *testing.T) *provider.Request {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		t.Fatal("no provider call captured")
	}
	return p.requests[len(p.requests)-1]
}

// countingStore counts Save calls.
type countingStore struct {
	mu    sync.Mutex
	saves []Record
	fail  error
}

func (s *countingStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.saves = append(s.saves, *rec)
	return nil
}

func (s *countingStore) Get(context.Context, string) (*Record, error) {
	return nil, lexiaerrors.ErrNotFound
}

func completedForm() *contestacion.FormData {
	return &contestacion.FormData{
		ClaimType: "reclamacion_cantidad",
		Entries: []contestacion.FormEntry{
			{BlockID: "b1", Title: "HECHOS", Posture: contestacion.PostureDeny,
				Justification: "La deuda fue saldada en marzo.", Evidence: []string{"recibo bancario"}},
			{BlockID: "b2", Title: "FUNDAMENTOS DE DERECHO", Posture: contestacion.PostureAdmit},
		},
	}
}

func newTestGenerator(p provider.Provider, store Store) *Generator {
	orch := orchestrator.New(orchestrator.WithProviders(p))
	return NewGenerator(orch, WithStore(store))
}

func consume(t *testing.T, run *Run) string {
	t.Helper()
	var sb strings.Builder
	for tok, err := range run.Stream {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		sb.WriteString(tok)
	}
	return sb.String()
}

func waitOutcome(t *testing.T, run *Run) Outcome {
	t.Helper()
	select {
	case out := <-run.Done:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not finish")
		return Outcome{}
	}
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh draft streams and persists once", func(t *testing.T) {
		p := &capturingProvider{chunks: []string{"AL JUZGADO ", "DE PRIMERA INSTANCIA"}}
		store := &countingStore{}
		gen := newTestGenerator(p, store)

		run, err := gen.Generate(ctx, &Request{CallerID: "abogado-1", SessionID: "s1", Form: completedForm()})
		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		text := consume(t, run)
		out := waitOutcome(t, run)
		if out.Err != nil {
			t.Fatalf("outcome: %v", out.Err)
		}
		if out.Record.Content != text || text != "AL JUZGADO DE PRIMERA INSTANCIA" {
			t.Errorf("persisted content %q, streamed %q", out.Record.Content, text)
		}
		if len(store.saves) != 1 {
			t.Fatalf("expected exactly one save, got %d", len(store.saves))
		}
		if out.Record.Provider != "claude" {
			t.Errorf("serving provider %q", out.Record.Provider)
		}

		req := p.lastRequest(t)
		if !strings.Contains(req.Messages[0].Content, "La deuda fue saldada en marzo.") {
			t.Error("form justifications missing from provider input")
		}
	})

	t.Run("iteration includes the previous draft verbatim", func(t *testing.T) {
		p := &capturingProvider{chunks: []string{"revisado"}}
		gen := newTestGenerator(p, &countingStore{})

		previous := "AL JUZGADO\n\nPRIMERO.- Se niega la deuda reclamada.\n\nSUPLICO que se desestime."
		run, err := gen.Generate(ctx, &Request{
			CallerID:      "abogado-1",
			Form:          completedForm(),
			PreviousDraft: previous,
			Instruction:   "añade la prescripción como defensa subsidiaria",
			Iteration:     2,
		})
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		consume(t, run)
		out := waitOutcome(t, run)
		if out.Err != nil {
			t.Fatalf("outcome: %v", out.Err)
		}

		req := p.lastRequest(t)
		if !strings.Contains(req.Messages[0].Content, previous) {
			t.Error("previous draft must appear verbatim in the provider input")
		}
		if !strings.Contains(req.Messages[0].Content, "añade la prescripción") {
			t.Error("revision instruction missing from provider input")
		}
		if out.Record.Iteration != 2 {
			t.Errorf("iteration %d", out.Record.Iteration)
		}
	})

	t.Run("case context is merged into the system prompt", func(t *testing.T) {
		p := &capturingProvider{chunks: []string{"texto"}}
		gen := newTestGenerator(p, &countingStore{})

		run, err := gen.Generate(ctx, &Request{
			CallerID: "abogado-1",
			Form:     completedForm(),
			CaseContext: &casectx.CaseContext{
				CaseID: "caso-9", Number: "123/2026", Title: "Reclamación de cantidad",
			},
		})
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		consume(t, run)
		waitOutcome(t, run)

		req := p.lastRequest(t)
		if !strings.Contains(req.SystemPrompt, "123/2026") {
			t.Errorf("case context missing from system prompt:\n%s", req.SystemPrompt)
		}
	})

	t.Run("previous draft without instruction is rejected", func(t *testing.T) {
		gen := newTestGenerator(&capturingProvider{}, &countingStore{})
		_, err := gen.Generate(ctx, &Request{
			CallerID:      "abogado-1",
			Form:          completedForm(),
			PreviousDraft: "algo",
		})
		if lexiaerrors.KindOf(err) != lexiaerrors.KindValidation {
			t.Errorf("expected validation, got %v", err)
		}
	})

	t.Run("empty form is rejected before any provider call", func(t *testing.T) {
		p := &capturingProvider{}
		gen := newTestGenerator(p, &countingStore{})
		if _, err := gen.Generate(ctx, &Request{CallerID: "abogado-1"}); lexiaerrors.KindOf(err) != lexiaerrors.KindValidation {
			t.Errorf("expected validation, got %v", err)
		}
		if len(p.requests) != 0 {
			t.Error("no provider call expected")
		}
	})

	t.Run("save failure is reported as persistence with content intact", func(t *testing.T) {
		store := &countingStore{fail: lexiaerrors.New(lexiaerrors.KindPersistence, "down")}
		gen := newTestGenerator(&capturingProvider{chunks: []string{"texto"}}, store)

		run, err := gen.Generate(ctx, &Request{CallerID: "abogado-1", Form: completedForm()})
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		consume(t, run)
		out := waitOutcome(t, run)

		if lexiaerrors.KindOf(out.Err) != lexiaerrors.KindPersistence {
			t.Fatalf("expected persistence error, got %v", out.Err)
		}
		if out.Record == nil || out.Record.Content != "texto" {
			t.Error("generated content must still be reported, it was already shown to the caller")
		}
	})
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML("# AL JUZGADO\n\n**PRIMERO.-** Se niega.")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "<h1") || !strings.Contains(html, "<strong>") {
		t.Errorf("unexpected html: %q", html)
	}
}
