package contestacion

// Action is the tagged union produced by Decide. Each variant carries only
// the fields relevant to it and every consumption site switches exhaustively
// over the concrete types.
type Action interface {
	ActionType() string
}

// ParseAction splits the raw source document into demand blocks.
type ParseAction struct{}

func (ParseAction) ActionType() string { return "parse" }

// AnalyzeAction applies a per-block analysis. The payload is filled by the
// analyst before the action is executed.
type AnalyzeAction struct {
	Analyses map[string]BlockAnalysis
}

func (AnalyzeAction) ActionType() string { return "analyze" }

// GenerateQuestionsAction attaches questions to the analyzed blocks.
type GenerateQuestionsAction struct {
	Questions map[string][]BlockQuestion
}

func (GenerateQuestionsAction) ActionType() string { return "generate_questions" }

// WaitUserAction holds state and returns the pending questions to the caller.
type WaitUserAction struct {
	Questions map[string][]BlockQuestion
}

func (WaitUserAction) ActionType() string { return "wait_user" }

// NeedMoreInfoAction flags blocks that still lack a usable response.
type NeedMoreInfoAction struct {
	Pending []PendingBlock
}

func (NeedMoreInfoAction) ActionType() string { return "need_more_info" }

// PendingBlock names one unanswered block and why it is still pending.
type PendingBlock struct {
	BlockID string `json:"block_id"`
	Reason  string `json:"reason"`
}

// ReadyForRedactionAction marks the session ready and carries the
// consolidated form.
type ReadyForRedactionAction struct {
	Form *FormData
}

func (ReadyForRedactionAction) ActionType() string { return "ready_for_redaction" }

// CompleteAction reports a session whose flow already finished.
type CompleteAction struct{}

func (CompleteAction) ActionType() string { return "complete" }

// ErrorAction reports a step that cannot proceed from the current state.
type ErrorAction struct {
	Message string
}

func (ErrorAction) ActionType() string { return "error" }
