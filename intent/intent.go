// Package intent maps raw user text to a policy bundle: the classified intent,
// the tool allowlist, whether case-context enrichment is needed, and the
// credit cost charged for the request. Classification is a pure function of
// its inputs so it can be unit-tested without a model call.
package intent

import "strings"

// Intent is the classified purpose of a user request.
type Intent string

const (
	IntentGeneralChat       Intent = "general_chat"
	IntentCaseChat          Intent = "case_chat"
	IntentDrafting          Intent = "drafting"
	IntentStrategicAnalysis Intent = "strategic_analysis"
)

// Tool names the classifier may grant.
const (
	ToolBuscarLegislacion   = "buscar_legislacion"
	ToolBuscarJurisprudencia = "buscar_jurisprudencia"
	ToolResumirDocumento    = "resumir_documento"
	ToolAnalizarRiesgos     = "analizar_riesgos"
)

// Classification is the policy bundle produced for one request.
type Classification struct {
	Intent       Intent
	Tools        []string
	NeedsContext bool
	Credits      int
}

var draftingMarkers = []string{
	"redacta", "redaccion", "borrador", "contestacion", "contesta la demanda",
	"escrito de", "prepara un escrito", "draft",
}

var strategicMarkers = []string{
	"estrategia", "estrategico", "analiza", "analisis", "riesgo",
	"probabilidad", "fortalezas", "debilidades", "viabilidad",
}

// Classify derives the policy bundle for a request. Empty or whitespace-only
// text still classifies (general chat) so a client-side input glitch never
// blocks the caller. Same inputs always produce the same classification.
func Classify(userText, caseID, callerID string) Classification {
	text := normalize(userText)
	hasCase := caseID != ""

	switch {
	case matchesAny(text, draftingMarkers):
		return Classification{
			Intent:       IntentDrafting,
			Tools:        []string{ToolResumirDocumento},
			NeedsContext: hasCase,
			Credits:      5,
		}
	case matchesAny(text, strategicMarkers):
		return Classification{
			Intent:       IntentStrategicAnalysis,
			Tools:        []string{ToolBuscarJurisprudencia, ToolAnalizarRiesgos, ToolResumirDocumento},
			NeedsContext: hasCase,
			Credits:      3,
		}
	case hasCase:
		return Classification{
			Intent:       IntentCaseChat,
			Tools:        []string{ToolBuscarLegislacion, ToolResumirDocumento},
			NeedsContext: true,
			Credits:      2,
		}
	default:
		return Classification{
			Intent:  IntentGeneralChat,
			Tools:   []string{ToolBuscarLegislacion},
			Credits: 1,
		}
	}
}

// CreditsFor returns the credit cost charged for an intent.
func CreditsFor(it Intent) int {
	switch it {
	case IntentDrafting:
		return 5
	case IntentStrategicAnalysis:
		return 3
	case IntentCaseChat:
		return 2
	default:
		return 1
	}
}

// AllowsTool reports whether the classification grants the named tool.
func (c Classification) AllowsTool(name string) bool {
	for _, t := range c.Tools {
		if t == name {
			return true
		}
	}
	return false
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
)

func normalize(text string) string {
	return accentFolder.Replace(strings.ToLower(strings.TrimSpace(text)))
}

func matchesAny(text string, markers []string) bool {
	if text == "" {
		return false
	}
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
