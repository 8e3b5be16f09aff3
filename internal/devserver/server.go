package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/Harris-py/codecollab-go/pkg/api"
)

var defaultLanguages = []api.Language{
	{Name: "javascript", Version: "20"},
	{Name: "python", Version: "3.12"},
	{Name: "go", Version: "1.25"},
}

// Config controls the development server.
type Config struct {
	// DataDir enables JSON file persistence for sessions when non-empty.
	DataDir string
	// Runner executes code submitted over REST or the websocket. Defaults
	// to a stub that never runs anything.
	Runner Runner
	// Languages advertised by GET /api/v1/languages.
	Languages []api.Language
}

// Server is an in-memory reference backend for the client package. It
// implements the REST surface and the realtime wire protocol against
// which the client is written.
type Server struct {
	store  *Store
	hub    *Hub
	issuer *tokenIssuer
	runner Runner
	langs  []api.Language
	mux    *chi.Mux
}

func New(cfg Config) (*Server, error) {
	store, err := NewStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	s := &Server{
		store:  store,
		hub:    NewHub(),
		issuer: newTokenIssuer(),
		runner: cfg.Runner,
		langs:  cfg.Languages,
	}
	if s.runner == nil {
		s.runner = stubRunner{}
	}
	if len(s.langs) == 0 {
		s.langs = defaultLanguages
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/api/v1/sessions", s.createSession)
	r.Post("/api/v1/sessions/join", s.joinSession)
	r.Get("/api/v1/languages", s.listLanguages)
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/api/v1/sessions/{id}", s.getSession)
		r.Patch("/api/v1/sessions/{id}", s.updateSession)
		r.Delete("/api/v1/sessions/{id}", s.deleteSession)
		r.Get("/api/v1/sessions/{id}/history", s.sessionHistory)
		r.Post("/api/v1/execute", s.runCode)
		r.Post("/api/v1/validate", s.validateCode)
	})
	r.Get("/ws", s.handleWS)
	s.mux = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type claimsKey struct{}

// requireToken rejects requests without a valid bearer token and stashes
// the verified claims on the request context.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.issuer.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	sess, err := s.store.Create(req.Name, req.Language, req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	token, err := s.issuer.Issue(sess.ID, uuid.NewString(), req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusCreated, api.SessionResponse{Session: sess, Token: token})
}

func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	var req api.JoinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.JoinCode == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "joinCode and username are required")
		return
	}
	sess, err := s.store.GetByCode(strings.ToUpper(req.JoinCode))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	token, err := s.issuer.Issue(sess.ID, uuid.NewString(), req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	sess.ParticipantCount = s.hub.RoomSize(sess.ID)
	writeJSON(w, http.StatusOK, api.SessionResponse{Session: sess, Token: token})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	sess.ParticipantCount = s.hub.RoomSize(sess.ID)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := s.store.Update(chi.URLParam(r, "id"), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sessionHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.History(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: entries})
}

func (s *Server) runCode(w http.ResponseWriter, r *http.Request) {
	var req api.RunCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := s.runner.Run(r.Context(), req.Code, req.Language, req.Input)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.RunCodeResponse{
		Output:     out.Output,
		Stderr:     out.Stderr,
		ExitCode:   out.ExitCode,
		DurationMs: out.DurationMs,
	})
}

func (s *Server) validateCode(w http.ResponseWriter, r *http.Request) {
	var req api.ValidateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp := api.ValidateCodeResponse{Valid: true}
	if strings.TrimSpace(req.Code) == "" {
		resp.Valid = false
		resp.Errors = []string{"code is empty"}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.LanguagesResponse{Languages: s.langs})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, ErrInvalidSessionID):
		writeError(w, http.StatusBadRequest, "invalid session id")
	default:
		writeError(w, http.StatusInternalServerError, "storage failure")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, api.ErrorResponse{Error: message})
}
