// Package casectx fetches a bounded, summarized bundle of case data used to
// ground an AI response. It performs no authorization: the caller must already
// hold a verified view permission on the case.
package casectx

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	stderrors "errors"

	lexiaerrors "github.com/sweetpotato0/lexia/errors"
)

// Deadline is an upcoming procedural deadline attached to a case.
type Deadline struct {
	Title string    `json:"title"`
	Due   time.Time `json:"due"`
}

// CaseContext is a bounded summary of one case. It lives for a single
// orchestration call and is never cached across requests.
type CaseContext struct {
	CaseID        string     `json:"case_id"`
	Number        string     `json:"number"`
	Title         string     `json:"title"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	DocumentCount int        `json:"document_count"`
	NoteCount     int        `json:"note_count"`
	Parties       []string   `json:"parties,omitempty"`
	Deadlines     []Deadline `json:"deadlines,omitempty"`
}

// Store reads case summaries from the row store. Row-level access control is
// enforced by the store itself.
type Store interface {
	CaseSummary(ctx context.Context, caseID string) (*CaseContext, error)
}

// Enrich fetches the case summary for prompt grounding. A missing case
// degrades to a minimal context instead of failing, so a stale or deleted
// case reference falls back to ungrounded chat.
func Enrich(ctx context.Context, store Store, caseID string) (*CaseContext, error) {
	if caseID == "" {
		return &CaseContext{}, nil
	}
	if store == nil {
		return &CaseContext{CaseID: caseID}, nil
	}

	summary, err := store.CaseSummary(ctx, caseID)
	if err != nil {
		if stderrors.Is(err, lexiaerrors.ErrNotFound) {
			return &CaseContext{CaseID: caseID}, nil
		}
		return nil, lexiaerrors.Wrap(lexiaerrors.KindPersistence, "read case summary", err)
	}
	return summary, nil
}

// Empty reports whether the context carries no usable case data.
func (c *CaseContext) Empty() bool {
	return c == nil || c.Number == "" && c.Title == ""
}

// PromptBlock renders the context as deterministic prompt text. The same
// context always yields the same block.
func (c *CaseContext) PromptBlock() string {
	if c.Empty() {
		return ""
	}

	var b strings.Builder
	b.WriteString("Contexto del caso:\n")
	fmt.Fprintf(&b, "- Expediente: %s\n", c.Number)
	fmt.Fprintf(&b, "- Asunto: %s\n", c.Title)
	if c.Type != "" {
		fmt.Fprintf(&b, "- Tipo: %s\n", c.Type)
	}
	if c.Status != "" {
		fmt.Fprintf(&b, "- Estado: %s\n", c.Status)
	}
	fmt.Fprintf(&b, "- Documentos: %d, notas: %d\n", c.DocumentCount, c.NoteCount)

	if len(c.Parties) > 0 {
		parties := append([]string(nil), c.Parties...)
		sort.Strings(parties)
		fmt.Fprintf(&b, "- Partes: %s\n", strings.Join(parties, ", "))
	}

	if len(c.Deadlines) > 0 {
		deadlines := append([]Deadline(nil), c.Deadlines...)
		sort.Slice(deadlines, func(i, j int) bool { return deadlines[i].Due.Before(deadlines[j].Due) })
		b.WriteString("- Próximos plazos:\n")
		for _, d := range deadlines {
			fmt.Fprintf(&b, "  - %s (%s)\n", d.Title, d.Due.Format("2006-01-02"))
		}
	}

	return b.String()
}
