package contestacion

import (
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
)

// Decide picks the next action for a session from its state alone. It is a
// pure function: the model-backed agent decision is layered on top by the
// service, which may turn a WaitUserAction into need_more_info or
// ready_for_redaction once the lawyer's responses arrive.
func Decide(state SessionState, rawText string) Action {
	if state.ListoParaRedaccion {
		// Readiness is monotonic: once set, later steps never walk it back.
		// A missing form is rebuilt when the responses still support it;
		// otherwise it stays nil and the service reports the inconsistency.
		form := state.Form
		if form == nil {
			if rebuilt, err := state.BuildForm(); err == nil {
				form = rebuilt
			}
		}
		return ReadyForRedactionAction{Form: form}
	}

	if len(state.Blocks) == 0 {
		if rawText == "" {
			return ErrorAction{Message: "no hay documento que analizar: la sesión no tiene texto fuente"}
		}
		return ParseAction{}
	}

	if !state.HasAnalyses() {
		return AnalyzeAction{}
	}

	if !state.HasQuestions() {
		return GenerateQuestionsAction{}
	}

	return WaitUserAction{Questions: state.Questions}
}

// ExecuteAction is the single mutation point of the flow: it applies one of
// {parse, analyze, generate_questions, ready_for_redaction} to the state and
// returns the new state. Every other variant leaves the state untouched.
// Parse is idempotent: a state that already has blocks passes through
// unchanged.
func ExecuteAction(state SessionState, action Action, rawText string) (SessionState, error) {
	switch a := action.(type) {
	case ParseAction:
		if len(state.Blocks) > 0 {
			return state, nil
		}
		blocks := ParseBlocks(rawText)
		if len(blocks) == 0 {
			// Retryable: the session stays in init.
			return state, nil
		}
		next := state.Clone()
		next.Blocks = blocks
		return next, nil

	case AnalyzeAction:
		if len(a.Analyses) == 0 {
			return state, lexiaerrors.New(lexiaerrors.KindInternal, "analyze action carries no analyses")
		}
		next := state.Clone()
		if next.Analyses == nil {
			next.Analyses = make(map[string]BlockAnalysis, len(a.Analyses))
		}
		for id, analysis := range a.Analyses {
			next.Analyses[id] = analysis
		}
		return next, nil

	case GenerateQuestionsAction:
		if len(a.Questions) == 0 {
			return state, lexiaerrors.New(lexiaerrors.KindInternal, "questions action carries no questions")
		}
		next := state.Clone()
		if next.Questions == nil {
			next.Questions = make(map[string][]BlockQuestion, len(a.Questions))
		}
		for id, qs := range a.Questions {
			next.Questions[id] = qs
		}
		return next, nil

	case ReadyForRedactionAction:
		if state.ListoParaRedaccion {
			return state, nil
		}
		form, err := state.BuildForm()
		if err != nil {
			return state, lexiaerrors.Wrap(lexiaerrors.KindStateConflict,
				"session is not ready for redaction", err)
		}
		next := state.Clone()
		next.ListoParaRedaccion = true
		next.Form = form
		return next, nil

	case WaitUserAction, NeedMoreInfoAction, CompleteAction, ErrorAction:
		return state, nil

	default:
		return state, lexiaerrors.New(lexiaerrors.KindInternal, "unknown action variant")
	}
}

// MergeResponses upserts the lawyer's responses into the state, keyed by
// block id. Responses for unknown blocks are dropped and older responses are
// overwritten, never deleted.
func MergeResponses(state SessionState, responses []BlockResponse) SessionState {
	if len(responses) == 0 {
		return state
	}
	known := make(map[string]bool, len(state.Blocks))
	for _, b := range state.Blocks {
		known[b.ID] = true
	}
	next := state.Clone()
	if next.Responses == nil {
		next.Responses = make(map[string]BlockResponse, len(responses))
	}
	for _, r := range responses {
		if !known[r.BlockID] {
			continue
		}
		next.Responses[r.BlockID] = r
	}
	return next
}
