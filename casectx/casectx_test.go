package casectx

import (
	"context"
	"strings"
	"testing"
	"time"

	lexiaerrors "github.com/sweetpotato0/lexia/errors"
)

type fakeStore struct {
	summaries map[string]*CaseContext
	failWith  error
}

func (f *fakeStore) CaseSummary(_ context.Context, caseID string) (*CaseContext, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	if c, ok := f.summaries[caseID]; ok {
		return c, nil
	}
	return nil, lexiaerrors.ErrNotFound
}

func TestEnrich(t *testing.T) {
	store := &fakeStore{summaries: map[string]*CaseContext{
		"case-1": {
			CaseID: "case-1",
			Number: "123/2026",
			Title:  "Pérez c. Construcciones Sur",
			Type:   "civil",
			Status: "en curso",
		},
	}}

	t.Run("returns the stored summary", func(t *testing.T) {
		got, err := Enrich(context.Background(), store, "case-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Number != "123/2026" {
			t.Errorf("unexpected number %q", got.Number)
		}
	})

	t.Run("missing case degrades to minimal context", func(t *testing.T) {
		got, err := Enrich(context.Background(), store, "deleted-case")
		if err != nil {
			t.Fatalf("expected graceful degrade, got error: %v", err)
		}
		if !got.Empty() {
			t.Error("expected empty context for unknown case")
		}
		if got.CaseID != "deleted-case" {
			t.Errorf("context should keep the requested case id, got %q", got.CaseID)
		}
	})

	t.Run("store outage is reported as persistence error", func(t *testing.T) {
		broken := &fakeStore{failWith: context.DeadlineExceeded}
		_, err := Enrich(context.Background(), broken, "case-1")
		if lexiaerrors.KindOf(err) != lexiaerrors.KindPersistence {
			t.Errorf("expected persistence kind, got %v", err)
		}
	})

	t.Run("empty case id short-circuits", func(t *testing.T) {
		got, err := Enrich(context.Background(), nil, "")
		if err != nil || !got.Empty() {
			t.Errorf("expected empty context, got %v / %v", got, err)
		}
	})
}

func TestPromptBlock(t *testing.T) {
	ctx := &CaseContext{
		CaseID:        "case-1",
		Number:        "123/2026",
		Title:         "Pérez c. Construcciones Sur",
		Type:          "civil",
		Status:        "en curso",
		DocumentCount: 4,
		NoteCount:     2,
		Parties:       []string{"Construcciones Sur SL", "Ana Pérez"},
		Deadlines: []Deadline{
			{Title: "Audiencia previa", Due: time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)},
		},
	}

	first := ctx.PromptBlock()
	second := ctx.PromptBlock()
	if first != second {
		t.Error("prompt block must be deterministic")
	}
	if !strings.Contains(first, "123/2026") || !strings.Contains(first, "Audiencia previa") {
		t.Errorf("prompt block missing case data:\n%s", first)
	}

	if (&CaseContext{CaseID: "x"}).PromptBlock() != "" {
		t.Error("empty context must render no prompt block")
	}
}
