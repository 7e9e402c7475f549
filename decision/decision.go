// Package decision resolves one request into an immutable configuration:
// system prompt, model choice, temperature, token budget and tool allowlist.
// A Decision is created per request and never persisted.
package decision

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/sweetpotato0/lexia/casectx"
	"github.com/sweetpotato0/lexia/intent"
	"github.com/sweetpotato0/lexia/prompt"
)

// Decision is the resolved configuration for one request/response cycle.
// Treated as a value: once finalized it is only copied, never mutated.
type Decision struct {
	Intent           intent.Intent
	Tools            []string
	SystemPrompt     string
	Model            string
	Temperature      float64
	MaxTokens        int64
	TraceID          string
	CallerID         string
	Credits          int
	ContextRequested bool

	// ServedBy names the provider that actually served the request. Empty
	// until the orchestrator completes; set on a copy, never in place.
	ServedBy string
}

// WithServedBy returns a copy of the decision recording the serving provider.
func (d Decision) WithServedBy(provider string) Decision {
	d.ServedBy = provider
	return d
}

// ModelChoice binds an intent to a model configuration.
type ModelChoice struct {
	Model       string
	Temperature float64
	MaxTokens   int64
}

var defaultModels = map[intent.Intent]ModelChoice{
	intent.IntentGeneralChat:       {Model: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 1024},
	intent.IntentCaseChat:          {Model: "claude-sonnet-4-5-20250929", Temperature: 0.5, MaxTokens: 2048},
	intent.IntentDrafting:          {Model: "claude-sonnet-4-5-20250929", Temperature: 0.3, MaxTokens: 8192},
	intent.IntentStrategicAnalysis: {Model: "gpt-4o", Temperature: 0.4, MaxTokens: 4096},
}

var promptByIntent = map[intent.Intent]string{
	intent.IntentGeneralChat:       prompt.SystemGeneralChat,
	intent.IntentCaseChat:          prompt.SystemCaseChat,
	intent.IntentDrafting:          prompt.SystemDrafting,
	intent.IntentStrategicAnalysis: prompt.SystemStrategicAnalysis,
}

// DefaultChoice returns the built-in model configuration for an intent.
func DefaultChoice(it intent.Intent) (ModelChoice, bool) {
	choice, ok := defaultModels[it]
	return choice, ok
}

// Builder finalizes decisions from classifier output and enriched context.
type Builder struct {
	prompts *prompt.Manager
	models  map[intent.Intent]ModelChoice
}

// Option configures a Builder.
type Option func(*Builder)

// WithPrompts overrides the prompt catalog.
func WithPrompts(m *prompt.Manager) Option {
	return func(b *Builder) {
		if m != nil {
			b.prompts = m
		}
	}
}

// WithModel overrides the model choice for one intent.
func WithModel(it intent.Intent, choice ModelChoice) Option {
	return func(b *Builder) {
		b.models[it] = choice
	}
}

// NewBuilder creates a decision builder backed by the default prompt catalog.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		prompts: prompt.DefaultCatalog(),
		models:  make(map[intent.Intent]ModelChoice, len(defaultModels)),
	}
	for it, choice := range defaultModels {
		b.models[it] = choice
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Finalize merges the enriched context into the system prompt and freezes the
// decision. Context enrichment only affects prompt text: the tool allowlist
// decided by the classifier passes through untouched.
func (b *Builder) Finalize(c intent.Classification, caseCtx *casectx.CaseContext, callerID string) (Decision, error) {
	choice, ok := b.models[c.Intent]
	if !ok {
		return Decision{}, fmt.Errorf("no model configured for intent %s", c.Intent)
	}

	tmplName, ok := promptByIntent[c.Intent]
	if !ok {
		return Decision{}, fmt.Errorf("no system prompt for intent %s", c.Intent)
	}

	contextBlock := ""
	if c.NeedsContext {
		contextBlock = caseCtx.PromptBlock()
	}
	systemPrompt, err := b.prompts.Render(tmplName, map[string]any{"Context": contextBlock})
	if err != nil {
		return Decision{}, fmt.Errorf("render system prompt: %w", err)
	}

	return Decision{
		Intent:           c.Intent,
		Tools:            append([]string(nil), c.Tools...),
		SystemPrompt:     systemPrompt,
		Model:            choice.Model,
		Temperature:      choice.Temperature,
		MaxTokens:        choice.MaxTokens,
		TraceID:          ulid.Make().String(),
		CallerID:         callerID,
		Credits:          c.Credits,
		ContextRequested: c.NeedsContext,
	}, nil
}
