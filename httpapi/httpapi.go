// Package httpapi exposes the chat, guided-session and draft operations over
// HTTP. Streams go out chunked; terminal errors map the error kind to a
// status code with a JSON body.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweetpotato0/lexia/assistant"
	"github.com/sweetpotato0/lexia/casectx"
	"github.com/sweetpotato0/lexia/contestacion"
	"github.com/sweetpotato0/lexia/draft"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
	"github.com/sweetpotato0/lexia/message"
	"github.com/sweetpotato0/lexia/pkg/logging"
)

// callerHeader carries the authenticated caller identity set by the upstream
// auth layer.
const callerHeader = "X-Caller-Id"

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	assistant *assistant.Assistant
	sessions  *contestacion.Service
	drafts    *draft.Generator
	cases     casectx.Store
	logger    *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCaseStore enables case-context enrichment on draft requests.
func WithCaseStore(s casectx.Store) ServerOption {
	return func(srv *Server) {
		srv.cases = s
	}
}

// NewServer creates the HTTP surface.
func NewServer(a *assistant.Assistant, sessions *contestacion.Service, drafts *draft.Generator, opts ...ServerOption) *Server {
	srv := &Server{
		assistant: a,
		sessions:  sessions,
		drafts:    drafts,
		logger:    logging.WithComponent("httpapi"),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Router builds the chi router for the server.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Route("/contestacion/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/{id}", s.handleGetSession)
			r.Post("/{id}/step", s.handleStep)
		})
		r.Post("/drafts", s.handleDraft)
	})

	return r
}

type chatRequest struct {
	CaseID   string `json:"case_id,omitempty"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	callerID := r.Header.Get(callerHeader)

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, lexiaerrors.Wrap(lexiaerrors.KindValidation, "malformed request body", err))
		return
	}

	msgs := make([]*message.Message, 0, len(body.Messages))
	for _, m := range body.Messages {
		msgs = append(msgs, message.NewMessage(message.Role(m.Role), m.Content))
	}

	reply, err := s.assistant.Ask(r.Context(), &assistant.Request{
		CallerID: callerID,
		CaseID:   body.CaseID,
		Messages: msgs,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.streamTokens(w, reply.Run.Stream)
}

// streamTokens writes a token sequence as a chunked plain-text response. A
// pre-first-token error still gets a proper status; after that the stream is
// simply truncated.
func (s *Server) streamTokens(w http.ResponseWriter, stream func(func(string, error) bool)) {
	flusher, _ := w.(http.Flusher)
	started := false

	for tok, err := range stream {
		if err != nil {
			if !started {
				s.writeError(w, err)
			} else {
				s.logger.Warn("stream aborted mid-response", "error", err)
			}
			return
		}
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, werr := w.Write([]byte(tok)); werr != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if !started {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
}

type createSessionRequest struct {
	CaseID      string `json:"case_id,omitempty"`
	RawText     string `json:"raw_text,omitempty"`
	DocumentRef string `json:"document_ref,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	callerID := r.Header.Get(callerHeader)

	var body createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, lexiaerrors.Wrap(lexiaerrors.KindValidation, "malformed request body", err))
		return
	}

	sess, err := s.sessions.Create(r.Context(), callerID, body.CaseID, body.RawText, body.DocumentRef)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sess.CallerID != r.Header.Get(callerHeader) {
		s.writeError(w, lexiaerrors.New(lexiaerrors.KindForbidden, "session belongs to another caller"))
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

type stepRequest struct {
	UserInput string                       `json:"user_input,omitempty"`
	Responses []contestacion.BlockResponse `json:"responses,omitempty"`
}

type stepResponse struct {
	Action   map[string]any            `json:"action"`
	State    contestacion.SessionState `json:"state"`
	NextStep contestacion.Step         `json:"next_step"`
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sess.CallerID != r.Header.Get(callerHeader) {
		s.writeError(w, lexiaerrors.New(lexiaerrors.KindForbidden, "session belongs to another caller"))
		return
	}

	var body stepRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, lexiaerrors.Wrap(lexiaerrors.KindValidation, "malformed request body", err))
		return
	}

	res, err := s.sessions.Step(r.Context(), sess.ID, body.UserInput, body.Responses)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stepResponse{
		Action:   actionJSON(res.Action),
		State:    res.State,
		NextStep: res.NextStep,
	})
}

// actionJSON renders the action tagged union as {type, ...payload}.
func actionJSON(a contestacion.Action) map[string]any {
	out := map[string]any{"type": a.ActionType()}
	switch v := a.(type) {
	case contestacion.WaitUserAction:
		out["questions"] = v.Questions
	case contestacion.NeedMoreInfoAction:
		out["pending"] = v.Pending
	case contestacion.ReadyForRedactionAction:
		out["form"] = v.Form
	case contestacion.ErrorAction:
		out["message"] = v.Message
	case contestacion.ParseAction, contestacion.AnalyzeAction,
		contestacion.GenerateQuestionsAction, contestacion.CompleteAction:
		// type alone is enough
	}
	return out
}

type draftRequest struct {
	SessionID     string                 `json:"session_id,omitempty"`
	CaseID        string                 `json:"case_id,omitempty"`
	Form          *contestacion.FormData `json:"form,omitempty"`
	PreviousDraft string                 `json:"previous_draft,omitempty"`
	Instruction   string                 `json:"instruction,omitempty"`
	Iteration     int                    `json:"iteration,omitempty"`
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	callerID := r.Header.Get(callerHeader)

	var body draftRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, lexiaerrors.Wrap(lexiaerrors.KindValidation, "malformed request body", err))
		return
	}

	form := body.Form
	if form == nil && body.SessionID != "" {
		sess, err := s.sessions.Get(r.Context(), body.SessionID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if sess.CallerID != callerID {
			s.writeError(w, lexiaerrors.New(lexiaerrors.KindForbidden, "session belongs to another caller"))
			return
		}
		if !sess.State.ListoParaRedaccion || sess.State.Form == nil {
			s.writeError(w, lexiaerrors.New(lexiaerrors.KindStateConflict,
				"session is not ready for redaction"))
			return
		}
		form = sess.State.Form
		if body.CaseID == "" {
			body.CaseID = sess.CaseID
		}
	}

	var caseCtx *casectx.CaseContext
	if s.cases != nil && body.CaseID != "" {
		enriched, err := casectx.Enrich(r.Context(), s.cases, body.CaseID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		caseCtx = enriched
	}

	run, err := s.drafts.Generate(r.Context(), &draft.Request{
		CallerID:      callerID,
		SessionID:     body.SessionID,
		CaseID:        body.CaseID,
		Form:          form,
		CaseContext:   caseCtx,
		PreviousDraft: body.PreviousDraft,
		Instruction:   body.Instruction,
		Iteration:     body.Iteration,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.streamTokens(w, run.Stream)
}

// writeError renders a terminal error as {error:{kind,message}} with the
// mapped status, adding Retry-After when the kind calls for it.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, lexiaerrors.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, errorBody(lexiaerrors.KindValidation, "not found"))
		return
	}

	kind := lexiaerrors.KindOf(err)
	if retryAfter := lexiaerrors.RetryAfterSeconds(err); retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}

	msg := err.Error()
	status := lexiaerrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		// Never leak internals to the boundary.
		msg = "internal error"
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, errorBody(kind, msg))
}

func errorBody(kind lexiaerrors.Kind, msg string) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"kind":    string(kind),
			"message": msg,
		},
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
