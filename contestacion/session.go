// Package contestacion implements the guided response-drafting flow: a
// deterministic state machine that walks a demand document through parsing,
// per-block analysis, question generation and lawyer responses until the
// consolidated form needed for redaction is complete. The session record is
// the sole source of truth; every step reads, computes and writes back the
// full state.
package contestacion

import (
	"errors"
	"time"
)

// Step is the coarse position of a session in the guided flow.
type Step string

const (
	StepInit         Step = "init"
	StepParsed       Step = "parsed"
	StepAnalyzed     Step = "analyzed"
	StepQuestions    Step = "questions"
	StepNeedMoreInfo Step = "need_more_info"
	StepReady        Step = "ready_for_redaction"
)

// Posture is the lawyer's stance on one demand block.
type Posture string

const (
	PostureAdmit      Posture = "admitir"
	PostureDeny       Posture = "negar"
	PosturePartial    Posture = "admitir_parcial"
	PostureDenyNuance Posture = "negar_con_matices"
	PostureNone       Posture = "sin_postura"
)

// DemandBlock is one structural unit of the source demand document. Blocks
// are stable once parsed: never reordered, never deleted.
type DemandBlock struct {
	ID      string `json:"id"`
	Order   int    `json:"order"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

// BlockAnalysis is the model-produced reading of one block.
type BlockAnalysis struct {
	BlockID            string   `json:"block_id"`
	KeyArguments       []string `json:"key_arguments"`
	WeakPoints         []string `json:"weak_points"`
	ImplicitEvidence   []string `json:"implicit_evidence"`
	DefenseSuggestions []string `json:"defense_suggestions"`
}

// BlockQuestion asks the lawyer how to respond to one block.
type BlockQuestion struct {
	BlockID          string   `json:"block_id"`
	Question         string   `json:"question"`
	Type             string   `json:"type,omitempty"`
	SuggestedOptions []string `json:"suggested_options,omitempty"`
}

// BlockResponse is the lawyer's answer for one block. NoAplica marks a block
// as explicitly not applicable, which satisfies readiness without a posture.
type BlockResponse struct {
	BlockID       string   `json:"block_id"`
	Posture       Posture  `json:"posture"`
	Justification string   `json:"justification,omitempty"`
	Evidence      []string `json:"evidence,omitempty"`
	NoAplica      bool     `json:"no_aplica,omitempty"`
}

// FormEntry is one consolidated response line in the redaction form.
type FormEntry struct {
	BlockID       string   `json:"block_id"`
	Title         string   `json:"title"`
	Posture       Posture  `json:"posture"`
	Justification string   `json:"justification,omitempty"`
	Evidence      []string `json:"evidence,omitempty"`
	NoAplica      bool     `json:"no_aplica,omitempty"`
}

// FormData is the consolidated input for draft generation, buildable only
// once every block has a usable response.
type FormData struct {
	ClaimType string      `json:"claim_type"`
	Variant   string      `json:"variant,omitempty"`
	Entries   []FormEntry `json:"entries"`
}

// SessionState is the full mutable state of a guided session. Analyses,
// questions and responses are keyed by block id and are upsert-only.
type SessionState struct {
	Blocks             []DemandBlock              `json:"bloques,omitempty"`
	Analyses           map[string]BlockAnalysis   `json:"analisis,omitempty"`
	Questions          map[string][]BlockQuestion `json:"preguntas,omitempty"`
	Responses          map[string]BlockResponse   `json:"respuestas,omitempty"`
	ClaimType          string                     `json:"tipo_reclamacion,omitempty"`
	DraftContent       string                     `json:"borrador,omitempty"`
	Variant            string                     `json:"variante,omitempty"`
	ListoParaRedaccion bool                       `json:"listo_para_redaccion"`
	Form               *FormData                  `json:"form,omitempty"`
}

// Session is one guided response-drafting flow, persisted between steps.
type Session struct {
	ID          string       `json:"id"`
	CallerID    string       `json:"caller_id"`
	CaseID      string       `json:"case_id,omitempty"`
	RawText     string       `json:"raw_text,omitempty"`
	DocumentRef string       `json:"document_ref,omitempty"`
	State       SessionState `json:"state"`
	CurrentStep Step         `json:"current_step"`
	Version     int64        `json:"version"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ErrVersionConflict is returned by stores when an update lost an optimistic
// concurrency race and must be retried from a fresh read.
var ErrVersionConflict = errors.New("contestacion: session version conflict")

// Clone returns a deep copy so a step can compute a new state without
// touching the loaded one.
func (s SessionState) Clone() SessionState {
	out := s
	out.Blocks = append([]DemandBlock(nil), s.Blocks...)
	if s.Analyses != nil {
		out.Analyses = make(map[string]BlockAnalysis, len(s.Analyses))
		for k, v := range s.Analyses {
			out.Analyses[k] = v
		}
	}
	if s.Questions != nil {
		out.Questions = make(map[string][]BlockQuestion, len(s.Questions))
		for k, v := range s.Questions {
			out.Questions[k] = append([]BlockQuestion(nil), v...)
		}
	}
	if s.Responses != nil {
		out.Responses = make(map[string]BlockResponse, len(s.Responses))
		for k, v := range s.Responses {
			out.Responses[k] = v
		}
	}
	if s.Form != nil {
		form := *s.Form
		form.Entries = append([]FormEntry(nil), s.Form.Entries...)
		out.Form = &form
	}
	return out
}

// HasAnalyses reports whether every parsed block has an analysis.
func (s SessionState) HasAnalyses() bool {
	if len(s.Blocks) == 0 || len(s.Analyses) == 0 {
		return false
	}
	for _, b := range s.Blocks {
		if _, ok := s.Analyses[b.ID]; !ok {
			return false
		}
	}
	return true
}

// HasQuestions reports whether at least one block has generated questions.
func (s SessionState) HasQuestions() bool {
	return len(s.Questions) > 0
}

// responseUsable reports whether a response settles its block.
func responseUsable(r BlockResponse) bool {
	if r.NoAplica {
		return true
	}
	switch r.Posture {
	case PostureAdmit:
		return true
	case PostureDeny, PosturePartial, PostureDenyNuance:
		return r.Justification != ""
	default:
		return false
	}
}

// PendingBlocks returns the ids of blocks still lacking a usable response,
// in block order.
func (s SessionState) PendingBlocks() []string {
	var pending []string
	for _, b := range s.Blocks {
		r, ok := s.Responses[b.ID]
		if !ok || !responseUsable(r) {
			pending = append(pending, b.ID)
		}
	}
	return pending
}

// BuildForm consolidates the responses into the redaction form. It fails
// when any block still lacks a usable response.
func (s SessionState) BuildForm() (*FormData, error) {
	if pending := s.PendingBlocks(); len(pending) > 0 {
		return nil, errors.New("contestacion: blocks without usable response: " + joinIDs(pending))
	}
	form := &FormData{
		ClaimType: s.ClaimType,
		Variant:   s.Variant,
		Entries:   make([]FormEntry, 0, len(s.Blocks)),
	}
	if form.ClaimType == "" {
		form.ClaimType = "reclamacion_general"
	}
	for _, b := range s.Blocks {
		r := s.Responses[b.ID]
		form.Entries = append(form.Entries, FormEntry{
			BlockID:       b.ID,
			Title:         b.Title,
			Posture:       r.Posture,
			Justification: r.Justification,
			Evidence:      r.Evidence,
			NoAplica:      r.NoAplica,
		})
	}
	return form, nil
}

// StepFor derives the coarse step from the state contents.
func StepFor(s SessionState) Step {
	switch {
	case s.ListoParaRedaccion:
		return StepReady
	case s.HasQuestions():
		return StepQuestions
	case s.HasAnalyses():
		return StepAnalyzed
	case len(s.Blocks) > 0:
		return StepParsed
	default:
		return StepInit
	}
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += id
	}
	return out
}
