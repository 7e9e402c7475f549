package contestacion

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	lexiaerrors "github.com/sweetpotato0/lexia/errors"
	"github.com/sweetpotato0/lexia/pkg/logging"
	"github.com/sweetpotato0/lexia/ratelimit"
)

// Store persists sessions. Update must apply an optimistic concurrency check
// on Session.Version and return ErrVersionConflict when the stored version
// moved, so two concurrent steps on one session cannot clobber each other.
type Store interface {
	Insert(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, sess *Session) error
}

// StepResult is what one orchestrate-step call returns to the boundary.
type StepResult struct {
	Action   Action       `json:"action"`
	State    SessionState `json:"state"`
	NextStep Step         `json:"next_step"`
}

// Service is the session API surface of the guided flow.
type Service struct {
	store   Store
	analyst *Analyst
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLimiter enables per-caller rate limiting on Step.
func WithLimiter(l *ratelimit.Limiter) ServiceOption {
	return func(s *Service) {
		s.limiter = l
	}
}

// WithServiceClock overrides the clock, for tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the session service.
func NewService(store Store, analyst *Analyst, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		analyst: analyst,
		logger:  logging.WithComponent("contestacion"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts a guided session. Raw text may be empty; the first step then
// reports there is nothing to parse instead of failing here.
func (s *Service) Create(ctx context.Context, callerID, caseID, rawText, documentRef string) (*Session, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, lexiaerrors.New(lexiaerrors.KindUnauthenticated, "missing caller identity")
	}

	now := s.now().UTC()
	sess := &Session{
		ID:          ulid.Make().String(),
		CallerID:    callerID,
		CaseID:      caseID,
		RawText:     rawText,
		DocumentRef: documentRef,
		CurrentStep: StepInit,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(ctx, sess); err != nil {
		return nil, lexiaerrors.Wrap(lexiaerrors.KindPersistence, "create session", err)
	}

	s.logger.Info("session created", "session_id", sess.ID, "caller_id", callerID, "case_id", caseID)
	return sess, nil
}

// Get loads a session by id.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, lexiaerrors.New(lexiaerrors.KindValidation, "missing session id")
	}
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, lexiaerrors.ErrNotFound) {
			return nil, lexiaerrors.Wrap(lexiaerrors.KindValidation, "session not found", err)
		}
		return nil, lexiaerrors.Wrap(lexiaerrors.KindPersistence, "load session", err)
	}
	return sess, nil
}

// Step advances a session by exactly one transition: merge any new lawyer
// responses, decide the next action, execute it, and persist the new state
// under the optimistic version check. A failed model step leaves the
// persisted state untouched and asks the caller to retry.
func (s *Service) Step(ctx context.Context, sessionID, userInput string, responses []BlockResponse) (*StepResult, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Check(ctx, sess.CallerID); err != nil {
			return nil, err
		}
	}

	state := MergeResponses(sess.State, responses)
	action := Decide(state, sess.RawText)

	// The model-backed agent decision only applies while the machine is
	// holding for the lawyer.
	if wait, ok := action.(WaitUserAction); ok {
		verdict := s.analyst.AgentDecision(ctx, state, userInput)
		switch verdict.Kind {
		case VerdictReady:
			action = ReadyForRedactionAction{}
		case VerdictNeedMoreInfo:
			action = NeedMoreInfoAction{Pending: verdict.Pending}
		default:
			action = wait
		}
	}

	next, err := s.execute(ctx, state, action, sess.RawText)
	if err != nil {
		return nil, err
	}

	// Refresh payloads computed during execution.
	if ready, ok := action.(ReadyForRedactionAction); ok && ready.Form == nil {
		action = ReadyForRedactionAction{Form: next.Form}
		if next.Form == nil {
			s.logger.Warn("ready session carries no buildable redaction form",
				"session_id", sess.ID)
		}
	}

	nextStep := StepFor(next)
	if _, ok := action.(NeedMoreInfoAction); ok {
		nextStep = StepNeedMoreInfo
	}

	sess.State = next
	sess.CurrentStep = nextStep
	sess.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, sess); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, lexiaerrors.Wrap(lexiaerrors.KindStateConflict,
				"session was modified concurrently, retry the step", err)
		}
		return nil, lexiaerrors.Wrap(lexiaerrors.KindPersistence, "persist session state", err)
	}

	s.logger.Info("session step",
		"session_id", sess.ID, "action", action.ActionType(), "next_step", nextStep)

	return &StepResult{Action: action, State: next, NextStep: nextStep}, nil
}

// execute fills model-backed action payloads and applies the action.
func (s *Service) execute(ctx context.Context, state SessionState, action Action, rawText string) (SessionState, error) {
	switch action.(type) {
	case AnalyzeAction:
		analyses, claimType, err := s.analyst.AnalyzeBlocks(ctx, state)
		if err != nil {
			return state, err
		}
		next, err := ExecuteAction(state, AnalyzeAction{Analyses: analyses}, "")
		if err != nil {
			return state, err
		}
		if next.ClaimType == "" && claimType != "" {
			next.ClaimType = claimType
		}
		return next, nil

	case GenerateQuestionsAction:
		questions, err := s.analyst.GenerateQuestions(ctx, state)
		if err != nil {
			return state, err
		}
		return ExecuteAction(state, GenerateQuestionsAction{Questions: questions}, "")

	default:
		return ExecuteAction(state, action, rawText)
	}
}
