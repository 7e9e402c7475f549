package contestacion

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	lexiaerrors "github.com/sweetpotato0/lexia/errors"
)

func twoBlockState() SessionState {
	return SessionState{
		Blocks: []DemandBlock{
			{ID: "b1", Order: 1, Title: "HECHOS", Content: "El actor reclama 12.000 EUR."},
			{ID: "b2", Order: 2, Title: "FUNDAMENTOS DE DERECHO", Content: "Art. 1101 CC."},
		},
	}
}

func answered(state SessionState) SessionState {
	state.Responses = map[string]BlockResponse{
		"b1": {BlockID: "b1", Posture: PostureDeny, Justification: "La deuda ya fue saldada."},
		"b2": {BlockID: "b2", Posture: PostureAdmit},
	}
	return state
}

func TestDecide(t *testing.T) {
	t.Run("empty session without source text errors", func(t *testing.T) {
		act := Decide(SessionState{}, "")
		if _, ok := act.(ErrorAction); !ok {
			t.Fatalf("expected error action, got %T", act)
		}
	})

	t.Run("source text present means parse", func(t *testing.T) {
		act := Decide(SessionState{}, "I. HECHOS\ntexto")
		if _, ok := act.(ParseAction); !ok {
			t.Fatalf("expected parse, got %T", act)
		}
	})

	t.Run("blocks without analyses means analyze", func(t *testing.T) {
		act := Decide(twoBlockState(), "")
		if _, ok := act.(AnalyzeAction); !ok {
			t.Fatalf("expected analyze, got %T", act)
		}
	})

	t.Run("analyses without questions means generate questions", func(t *testing.T) {
		state := twoBlockState()
		state.Analyses = map[string]BlockAnalysis{
			"b1": {BlockID: "b1"}, "b2": {BlockID: "b2"},
		}
		act := Decide(state, "")
		if _, ok := act.(GenerateQuestionsAction); !ok {
			t.Fatalf("expected generate_questions, got %T", act)
		}
	})

	t.Run("questions present defaults to wait_user", func(t *testing.T) {
		state := twoBlockState()
		state.Analyses = map[string]BlockAnalysis{"b1": {}, "b2": {}}
		state.Questions = map[string][]BlockQuestion{"b1": {{BlockID: "b1", Question: "¿Postura?"}}}
		act := Decide(state, "")
		if _, ok := act.(WaitUserAction); !ok {
			t.Fatalf("expected wait_user, got %T", act)
		}
	})

	t.Run("readiness is monotonic", func(t *testing.T) {
		state := answered(twoBlockState())
		state.ListoParaRedaccion = true
		// Even with a fresh unanswered block map the flag wins.
		state.Responses = nil
		act := Decide(state, "")
		if _, ok := act.(ReadyForRedactionAction); !ok {
			t.Fatalf("ready session must stay ready, got %T", act)
		}
	})

	t.Run("ready session rebuilds a missing form from its responses", func(t *testing.T) {
		state := answered(twoBlockState())
		state.ListoParaRedaccion = true
		act := Decide(state, "")
		ready, ok := act.(ReadyForRedactionAction)
		if !ok {
			t.Fatalf("expected ready, got %T", act)
		}
		if ready.Form == nil || len(ready.Form.Entries) != 2 {
			t.Errorf("form not rebuilt: %+v", ready.Form)
		}
	})

	t.Run("ready session with unbuildable form still decides ready", func(t *testing.T) {
		state := twoBlockState()
		state.ListoParaRedaccion = true
		act := Decide(state, "")
		ready, ok := act.(ReadyForRedactionAction)
		if !ok {
			t.Fatalf("ready session must stay ready, got %T", act)
		}
		if ready.Form != nil {
			t.Errorf("form should stay nil when no responses support it, got %+v", ready.Form)
		}
	})
}

func TestExecuteAction(t *testing.T) {
	t.Run("parse is idempotent on a state with blocks", func(t *testing.T) {
		state := twoBlockState()
		next, err := ExecuteAction(state, ParseAction{}, "I. OTRA COSA\nmás texto")
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if diff := cmp.Diff(state, next); diff != "" {
			t.Errorf("state changed on re-parse (-want +got):\n%s", diff)
		}
	})

	t.Run("parse with unstructured text stays in init", func(t *testing.T) {
		next, err := ExecuteAction(SessionState{}, ParseAction{}, "texto plano sin estructura")
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if len(next.Blocks) != 0 {
			t.Errorf("expected zero blocks, got %d", len(next.Blocks))
		}
	})

	t.Run("analyze upserts without touching blocks", func(t *testing.T) {
		state := twoBlockState()
		next, err := ExecuteAction(state, AnalyzeAction{Analyses: map[string]BlockAnalysis{
			"b1": {BlockID: "b1", KeyArguments: []string{"impago"}},
		}}, "")
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if diff := cmp.Diff(state.Blocks, next.Blocks); diff != "" {
			t.Errorf("blocks must be stable (-want +got):\n%s", diff)
		}
		if next.Analyses["b1"].KeyArguments[0] != "impago" {
			t.Error("analysis not applied")
		}
		if len(state.Analyses) != 0 {
			t.Error("input state mutated")
		}
	})

	t.Run("ready refuses unanswered blocks", func(t *testing.T) {
		state := twoBlockState()
		_, err := ExecuteAction(state, ReadyForRedactionAction{}, "")
		if lexiaerrors.KindOf(err) != lexiaerrors.KindStateConflict {
			t.Fatalf("expected state conflict, got %v", err)
		}
	})

	t.Run("ready builds the consolidated form", func(t *testing.T) {
		state := answered(twoBlockState())
		next, err := ExecuteAction(state, ReadyForRedactionAction{}, "")
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if !next.ListoParaRedaccion {
			t.Fatal("flag not set")
		}
		if next.Form == nil || len(next.Form.Entries) != 2 {
			t.Fatalf("form not built: %+v", next.Form)
		}
		if next.Form.Entries[0].BlockID != "b1" || next.Form.Entries[1].BlockID != "b2" {
			t.Error("form entries must follow block order")
		}
	})

	t.Run("no aplica satisfies readiness", func(t *testing.T) {
		state := twoBlockState()
		state.Responses = map[string]BlockResponse{
			"b1": {BlockID: "b1", Posture: PostureDeny, Justification: "Pagado."},
			"b2": {BlockID: "b2", NoAplica: true},
		}
		next, err := ExecuteAction(state, ReadyForRedactionAction{}, "")
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if !next.ListoParaRedaccion {
			t.Error("explicitly skipped block must count as answered")
		}
	})
}

func TestMergeResponses(t *testing.T) {
	state := twoBlockState()

	merged := MergeResponses(state, []BlockResponse{
		{BlockID: "b1", Posture: PostureDeny, Justification: "No hubo entrega."},
		{BlockID: "desconocido", Posture: PostureAdmit},
	})

	if len(merged.Responses) != 1 {
		t.Fatalf("expected only known blocks merged, got %d", len(merged.Responses))
	}
	if len(state.Responses) != 0 {
		t.Error("merge must not mutate its input")
	}

	// Upsert-only: a second submission overwrites, never deletes.
	again := MergeResponses(merged, []BlockResponse{
		{BlockID: "b1", Posture: PostureAdmit},
	})
	if again.Responses["b1"].Posture != PostureAdmit {
		t.Error("resubmission should overwrite the response")
	}
}

func TestDeterministicVerdict(t *testing.T) {
	t.Run("no responses waits", func(t *testing.T) {
		v := deterministicVerdict(twoBlockState())
		if v.Kind != VerdictWait {
			t.Errorf("expected wait, got %s", v.Kind)
		}
	})

	t.Run("partial responses need more info", func(t *testing.T) {
		state := twoBlockState()
		state.Responses = map[string]BlockResponse{
			"b1": {BlockID: "b1", Posture: PostureAdmit},
		}
		v := deterministicVerdict(state)
		if v.Kind != VerdictNeedMoreInfo {
			t.Fatalf("expected need_more_info, got %s", v.Kind)
		}
		if len(v.Pending) != 1 || v.Pending[0].BlockID != "b2" {
			t.Errorf("pending list wrong: %+v", v.Pending)
		}
	})

	t.Run("full coverage is ready", func(t *testing.T) {
		v := deterministicVerdict(answered(twoBlockState()))
		if v.Kind != VerdictReady {
			t.Errorf("expected ready, got %s", v.Kind)
		}
	})

	t.Run("denial without justification stays pending", func(t *testing.T) {
		state := twoBlockState()
		state.Responses = map[string]BlockResponse{
			"b1": {BlockID: "b1", Posture: PostureDeny},
			"b2": {BlockID: "b2", Posture: PostureAdmit},
		}
		v := deterministicVerdict(state)
		if v.Kind != VerdictNeedMoreInfo {
			t.Errorf("bare denial should not be usable, got %s", v.Kind)
		}
	})
}
