package contestacion

import (
	"context"
	"testing"

	"github.com/sweetpotato0/lexia/provider"
)

func TestAnalyzeBlocksDecoding(t *testing.T) {
	t.Run("decodes the instructed object shape", func(t *testing.T) {
		out := `{"claim_type": "reclamacion_cantidad", "blocks": [
			{"block_id": "b1", "key_arguments": ["impago acreditado"],
			 "weak_points": ["sin requerimiento previo"],
			 "implicit_evidence": ["contrato"],
			 "defense_suggestions": ["acreditar el pago"]},
			{"block_id": "b2", "key_arguments": ["art. 1101 CC"]}
		]}`
		a := NewAnalyst(provider.Static("fake", out), nil)

		analyses, claimType, err := a.AnalyzeBlocks(context.Background(), twoBlockState())
		if err != nil {
			t.Fatalf("analyze failed: %v", err)
		}
		if claimType != "reclamacion_cantidad" {
			t.Errorf("claim type = %q", claimType)
		}
		if got := analyses["b1"].KeyArguments; len(got) != 1 || got[0] != "impago acreditado" {
			t.Errorf("b1 key arguments = %v", got)
		}
		if analyses["b2"].BlockID != "b2" {
			t.Errorf("b2 analysis missing: %+v", analyses)
		}
	})

	t.Run("prose around the object is trimmed", func(t *testing.T) {
		out := "Claro, aquí tienes:\n```json\n{\"claim_type\": \"x\", \"blocks\": []}\n```"
		a := NewAnalyst(provider.Static("fake", out), nil)

		analyses, claimType, err := a.AnalyzeBlocks(context.Background(), twoBlockState())
		if err != nil {
			t.Fatalf("analyze failed: %v", err)
		}
		if claimType != "x" {
			t.Errorf("claim type = %q", claimType)
		}
		// All blocks skipped by the model still get covered.
		if len(analyses) != 2 {
			t.Errorf("analyses = %+v", analyses)
		}
	})
}

func TestGenerateQuestionsDecoding(t *testing.T) {
	out := `{"questions": [
		{"block_id": "b1", "question": "¿Se pagó la deuda?", "type": "postura",
		 "suggested_options": ["admitir", "negar"]}
	]}`
	a := NewAnalyst(provider.Static("fake", out), nil)

	state := twoBlockState()
	state.Analyses = map[string]BlockAnalysis{"b1": {BlockID: "b1"}, "b2": {BlockID: "b2"}}

	questions, err := a.GenerateQuestions(context.Background(), state)
	if err != nil {
		t.Fatalf("generate questions failed: %v", err)
	}
	if qs := questions["b1"]; len(qs) != 1 || qs[0].Question != "¿Se pagó la deuda?" {
		t.Errorf("b1 questions = %+v", qs)
	}
	if qs := questions["b1"]; len(qs) == 1 && len(qs[0].SuggestedOptions) != 2 {
		t.Errorf("b1 options = %v", qs[0].SuggestedOptions)
	}
	// Skipped block falls back to the default posture question.
	if qs := questions["b2"]; len(qs) != 1 || qs[0].Type != "postura" {
		t.Errorf("b2 questions = %+v", qs)
	}
}

func TestAgentDecisionDecoding(t *testing.T) {
	t.Run("need_more_info pending list is decoded", func(t *testing.T) {
		out := `{"decision": "need_more_info", "pending": [{"block_id": "b2", "reason": "sin justificación"}]}`
		a := NewAnalyst(provider.Static("fake", out), nil)

		v := a.AgentDecision(context.Background(), answered(twoBlockState()), "")
		if v.Kind != VerdictNeedMoreInfo {
			t.Fatalf("verdict = %q", v.Kind)
		}
		if len(v.Pending) != 1 || v.Pending[0].BlockID != "b2" {
			t.Errorf("pending = %+v", v.Pending)
		}
	})

	t.Run("ready claim without usable responses is downgraded", func(t *testing.T) {
		out := `{"decision": "ready_for_redaction", "pending": []}`
		a := NewAnalyst(provider.Static("fake", out), nil)

		v := a.AgentDecision(context.Background(), twoBlockState(), "")
		if v.Kind != VerdictNeedMoreInfo {
			t.Errorf("verdict = %q, want need_more_info", v.Kind)
		}
	})
}
