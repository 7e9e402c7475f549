package contestacion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lexiaerrors "github.com/sweetpotato0/lexia/errors"
	"github.com/sweetpotato0/lexia/message"
	"github.com/sweetpotato0/lexia/pkg/logging"
	"github.com/sweetpotato0/lexia/prompt"
	"github.com/sweetpotato0/lexia/provider"
)

// Verdict is the agent decision over a session waiting on the lawyer.
type Verdict struct {
	Kind    VerdictKind
	Pending []PendingBlock
}

type VerdictKind string

const (
	VerdictWait         VerdictKind = "wait_user"
	VerdictNeedMoreInfo VerdictKind = "need_more_info"
	VerdictReady        VerdictKind = "ready_for_redaction"
)

// Analyst runs the model-backed steps of the guided flow: block analysis,
// question generation and the agent decision. Unusable model output falls
// back to deterministic rules computed from the state, so a bad completion
// never corrupts a session.
type Analyst struct {
	provider    provider.Provider
	prompts     *prompt.Manager
	model       string
	maxTokens   int64
	callTimeout time.Duration
	logger      *slog.Logger
}

// AnalystOption configures an Analyst.
type AnalystOption func(*Analyst)

// WithAnalystModel overrides the model used for the guided-flow calls.
func WithAnalystModel(model string) AnalystOption {
	return func(a *Analyst) {
		if model != "" {
			a.model = model
		}
	}
}

// WithAnalystTimeout bounds one model call.
func WithAnalystTimeout(d time.Duration) AnalystOption {
	return func(a *Analyst) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

// NewAnalyst creates an analyst on top of a single provider.
func NewAnalyst(p provider.Provider, prompts *prompt.Manager, opts ...AnalystOption) *Analyst {
	a := &Analyst{
		provider:    p,
		prompts:     prompts,
		model:       "claude-sonnet-4-5-20250929",
		maxTokens:   4096,
		callTimeout: 60 * time.Second,
		logger:      logging.WithComponent("contestacion.analyst"),
	}
	if a.prompts == nil {
		a.prompts = prompt.DefaultCatalog()
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// complete runs one blocking completion and returns the accumulated text.
func (a *Analyst) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	req := &provider.Request{
		SystemPrompt: system,
		Messages:     []*message.Message{message.NewMessage(message.RoleUser, user)},
		Model:        a.model,
		Temperature:  0.2,
		MaxTokens:    a.maxTokens,
	}

	var sb strings.Builder
	for text, err := range a.provider.Stream(ctx, req) {
		if err != nil {
			return "", err
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

type blockAnalysisPayload struct {
	Blocks []struct {
		BlockID            string   `json:"block_id"`
		KeyArguments       []string `json:"key_arguments"`
		WeakPoints         []string `json:"weak_points"`
		ImplicitEvidence   []string `json:"implicit_evidence"`
		DefenseSuggestions []string `json:"defense_suggestions"`
	} `json:"blocks"`
	ClaimType string `json:"claim_type"`
}

// AnalyzeBlocks runs the model analysis over every block. A failed call or
// undecodable output returns an error so the caller keeps the prior state and
// retries the same step.
func (a *Analyst) AnalyzeBlocks(ctx context.Context, state SessionState) (map[string]BlockAnalysis, string, error) {
	system, err := a.prompts.Render(prompt.SystemBlockAnalysis, nil)
	if err != nil {
		return nil, "", lexiaerrors.Wrap(lexiaerrors.KindInternal, "render analysis prompt", err)
	}

	out, err := a.complete(ctx, system, renderBlocks(state.Blocks))
	if err != nil {
		return nil, "", lexiaerrors.Wrap(lexiaerrors.KindProviderTransient, "block analysis failed", err)
	}

	var payload blockAnalysisPayload
	if err := json.Unmarshal([]byte(extractJSON(out)), &payload); err != nil {
		return nil, "", lexiaerrors.Wrap(lexiaerrors.KindProviderTransient,
			"block analysis returned unusable output", err)
	}

	analyses := make(map[string]BlockAnalysis, len(state.Blocks))
	for _, b := range payload.Blocks {
		analyses[b.BlockID] = BlockAnalysis{
			BlockID:            b.BlockID,
			KeyArguments:       b.KeyArguments,
			WeakPoints:         b.WeakPoints,
			ImplicitEvidence:   b.ImplicitEvidence,
			DefenseSuggestions: b.DefenseSuggestions,
		}
	}
	// The model may skip a block; cover it with an empty analysis so the
	// flow can still advance and the question step can probe it.
	for _, b := range state.Blocks {
		if _, ok := analyses[b.ID]; !ok {
			analyses[b.ID] = BlockAnalysis{BlockID: b.ID}
		}
	}
	return analyses, payload.ClaimType, nil
}

type blockQuestionsPayload struct {
	Questions []struct {
		BlockID          string   `json:"block_id"`
		Question         string   `json:"question"`
		Type             string   `json:"type"`
		SuggestedOptions []string `json:"suggested_options"`
	} `json:"questions"`
}

// GenerateQuestions produces the clarifying questions for the lawyer. Blocks
// the model skipped get a default posture question so every block is always
// answerable.
func (a *Analyst) GenerateQuestions(ctx context.Context, state SessionState) (map[string][]BlockQuestion, error) {
	system, err := a.prompts.Render(prompt.SystemBlockQuestions, nil)
	if err != nil {
		return nil, lexiaerrors.Wrap(lexiaerrors.KindInternal, "render questions prompt", err)
	}

	out, err := a.complete(ctx, system, renderBlocksWithAnalyses(state))
	if err != nil {
		return nil, lexiaerrors.Wrap(lexiaerrors.KindProviderTransient, "question generation failed", err)
	}

	var payload blockQuestionsPayload
	if err := json.Unmarshal([]byte(extractJSON(out)), &payload); err != nil {
		return nil, lexiaerrors.Wrap(lexiaerrors.KindProviderTransient,
			"question generation returned unusable output", err)
	}

	questions := make(map[string][]BlockQuestion)
	for _, q := range payload.Questions {
		if q.Question == "" {
			continue
		}
		questions[q.BlockID] = append(questions[q.BlockID], BlockQuestion{
			BlockID:          q.BlockID,
			Question:         q.Question,
			Type:             q.Type,
			SuggestedOptions: q.SuggestedOptions,
		})
	}
	for _, b := range state.Blocks {
		if len(questions[b.ID]) == 0 {
			questions[b.ID] = []BlockQuestion{defaultQuestion(b)}
		}
	}
	return questions, nil
}

type agentDecisionPayload struct {
	Decision string `json:"decision"`
	Pending  []struct {
		BlockID string `json:"block_id"`
		Reason  string `json:"reason"`
	} `json:"pending"`
}

// AgentDecision asks the model whether the session should keep waiting, flag
// missing information or conclude ready for redaction. The model can only
// tighten, never loosen: a ready verdict is honored only when the
// deterministic readiness check agrees.
func (a *Analyst) AgentDecision(ctx context.Context, state SessionState, userInput string) Verdict {
	fallback := deterministicVerdict(state)

	system, err := a.prompts.Render(prompt.SystemAgentDecision, nil)
	if err != nil {
		return fallback
	}

	out, err := a.complete(ctx, system, renderDecisionInput(state, userInput))
	if err != nil {
		a.logger.Warn("agent decision call failed, using deterministic verdict", "error", err)
		return fallback
	}

	var payload agentDecisionPayload
	if err := json.Unmarshal([]byte(extractJSON(out)), &payload); err != nil {
		a.logger.Warn("agent decision output unusable, using deterministic verdict", "error", err)
		return fallback
	}

	switch VerdictKind(payload.Decision) {
	case VerdictReady:
		if fallback.Kind == VerdictReady {
			return fallback
		}
		// Model claims readiness the responses do not support.
		return Verdict{Kind: VerdictNeedMoreInfo, Pending: fallback.Pending}
	case VerdictNeedMoreInfo:
		pending := make([]PendingBlock, 0, len(payload.Pending))
		for _, p := range payload.Pending {
			pending = append(pending, PendingBlock{BlockID: p.BlockID, Reason: p.Reason})
		}
		if len(pending) == 0 {
			pending = fallback.Pending
		}
		return Verdict{Kind: VerdictNeedMoreInfo, Pending: pending}
	case VerdictWait:
		return Verdict{Kind: VerdictWait}
	default:
		return fallback
	}
}

// deterministicVerdict derives the verdict from response coverage alone.
func deterministicVerdict(state SessionState) Verdict {
	pending := state.PendingBlocks()
	if len(pending) == 0 {
		return Verdict{Kind: VerdictReady}
	}
	if len(state.Responses) == 0 {
		return Verdict{Kind: VerdictWait}
	}
	out := make([]PendingBlock, 0, len(pending))
	for _, id := range pending {
		out = append(out, PendingBlock{BlockID: id, Reason: "falta una postura o justificación utilizable"})
	}
	return Verdict{Kind: VerdictNeedMoreInfo, Pending: out}
}

func defaultQuestion(b DemandBlock) BlockQuestion {
	return BlockQuestion{
		BlockID:  b.ID,
		Question: fmt.Sprintf("¿Qué postura adopta frente al bloque %q?", b.Title),
		Type:     "postura",
		SuggestedOptions: []string{
			string(PostureAdmit), string(PostureDeny),
			string(PosturePartial), string(PostureDenyNuance),
		},
	}
}

func renderBlocks(blocks []DemandBlock) string {
	var sb strings.Builder
	sb.WriteString("Bloques de la demanda:\n")
	for _, b := range blocks {
		fmt.Fprintf(&sb, "\n[%s] %d. %s\n%s\n", b.ID, b.Order, b.Title, b.Content)
	}
	sb.WriteString("\nResponde únicamente con JSON: {\"claim_type\": ..., \"blocks\": [{\"block_id\", \"key_arguments\", \"weak_points\", \"implicit_evidence\", \"defense_suggestions\"}]}")
	return sb.String()
}

func renderBlocksWithAnalyses(state SessionState) string {
	var sb strings.Builder
	sb.WriteString(renderBlocks(state.Blocks))
	sb.WriteString("\n\nAnálisis previo:\n")
	for _, b := range state.Blocks {
		if an, ok := state.Analyses[b.ID]; ok {
			fmt.Fprintf(&sb, "[%s] argumentos: %s; debilidades: %s\n",
				b.ID, strings.Join(an.KeyArguments, "; "), strings.Join(an.WeakPoints, "; "))
		}
	}
	sb.WriteString("\nResponde únicamente con JSON: {\"questions\": [{\"block_id\", \"question\", \"type\", \"suggested_options\"}]}")
	return sb.String()
}

func renderDecisionInput(state SessionState, userInput string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Bloques: %d. Respuestas registradas: %d. Pendientes: %d.\n",
		len(state.Blocks), len(state.Responses), len(state.PendingBlocks()))
	for _, id := range state.PendingBlocks() {
		fmt.Fprintf(&sb, "- pendiente: %s\n", id)
	}
	if userInput != "" {
		fmt.Fprintf(&sb, "\nMensaje del letrado: %s\n", userInput)
	}
	sb.WriteString("\nResponde únicamente con JSON: {\"decision\": \"wait_user\"|\"need_more_info\"|\"ready_for_redaction\", \"pending\": [{\"block_id\", \"reason\"}]}")
	return sb.String()
}

// extractJSON trims prose or code fences the model wrapped around the JSON
// body.
func extractJSON(out string) string {
	out = strings.TrimSpace(out)
	if i := strings.Index(out, "{"); i >= 0 {
		if j := strings.LastIndex(out, "}"); j > i {
			return out[i : j+1]
		}
	}
	return out
}
