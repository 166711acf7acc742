package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/domain"
)

// Handler exposes the live quiz engine as JSON endpoints. Every error is
// recovered into a typed response here; nothing propagates as a raw failure.
type Handler struct {
	service *app.Service
	auth    app.Authenticator
}

func NewHandler(service *app.Service, auth app.Authenticator) *Handler {
	return &Handler{service: service, auth: auth}
}

// Register mounts all engine routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /quizzes/{id}/session/start", h.startSession)
	mux.HandleFunc("POST /quizzes/{id}/session/stop", h.stopSession)
	mux.HandleFunc("GET /quizzes/{id}/session", h.getSession)
	mux.HandleFunc("POST /sessions/{id}/interactions", h.recordInteraction)
	mux.HandleFunc("POST /quizzes/{id}/submissions", h.finalize)
	mux.HandleFunc("POST /quizzes/{id}/restart", h.restart)
	mux.HandleFunc("GET /quizzes/{id}/leaderboard", h.leaderboard)
}

type startSessionRequest struct {
	TimeLimitMinutes int `json:"timeLimitMinutes"`
}

type interactionRequest struct {
	QuestionIndex  int    `json:"questionIndex"`
	QuestionID     string `json:"questionId,omitempty"`
	SelectedOption *int   `json:"selectedOption,omitempty"`
}

type finalizeRequest struct {
	Generation int            `json:"generation,omitempty"`
	Answers    map[string]int `json:"answers"`
}

type finalizeResponse struct {
	Submission       domain.Submission `json:"submission"`
	AlreadySubmitted bool              `json:"alreadySubmitted"`
}

type restartRequest struct {
	ClearPreviousResults bool `json:"clearPreviousResults"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	identity, ok := h.requireManager(w, r, quizID)
	if !ok {
		return
	}

	var req startSessionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	session, err := h.service.StartSession(r.Context(), quizID, req.TimeLimitMinutes)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("session %s started for quiz %s by %s", session.ID, quizID, identity.UserID)
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	if _, ok := h.requireManager(w, r, quizID); !ok {
		return
	}
	if err := h.service.StopSession(r.Context(), quizID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	session, err := h.service.ActiveSession(r.Context(), quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	if session == nil {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) recordInteraction(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if identity.Role != domain.RoleStudent {
		writeError(w, domain.ErrUnauthorized)
		return
	}

	var req interactionRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	selected := -1
	if req.SelectedOption != nil {
		selected = *req.SelectedOption
	}

	progress, err := h.service.RecordInteraction(r.Context(), sessionID, identity.UserID, req.QuestionIndex, req.QuestionID, selected)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if identity.Role != domain.RoleStudent {
		writeError(w, domain.ErrUnauthorized)
		return
	}

	var req finalizeRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	sub, err := h.service.Finalize(r.Context(), quizID, identity.UserID, req.Generation, req.Answers)
	if errors.Is(err, domain.ErrAlreadySubmitted) {
		// Recoverable conflict: almost always a client retransmission, so the
		// existing result is returned as success.
		writeJSON(w, http.StatusOK, finalizeResponse{Submission: sub, AlreadySubmitted: true})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, finalizeResponse{Submission: sub})
}

func (h *Handler) restart(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	if _, ok := h.requireManager(w, r, quizID); !ok {
		return
	}

	var req restartRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	result, err := h.service.Restart(r.Context(), quizID, req.ClearPreviousResults)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	generation := 0
	if raw := r.URL.Query().Get("generation"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "generation must be an integer"})
			return
		}
		generation = n
	}

	lb, err := h.service.BuildLeaderboard(r.Context(), quizID, generation)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

// authenticate resolves the bearer token or writes a 401.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	identity, err := h.auth.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, domain.ErrUnauthenticated)
		return domain.Identity{}, false
	}
	return identity, true
}

// requireManager authenticates and checks the caller may manage the quiz:
// its owning teacher, or an admin. Never downgraded silently.
func (h *Handler) requireManager(w http.ResponseWriter, r *http.Request, quizID string) (domain.Identity, bool) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return domain.Identity{}, false
	}
	quiz, err := h.service.Quiz(r.Context(), quizID)
	if err != nil {
		writeError(w, err)
		return domain.Identity{}, false
	}
	if !identity.CanManage(quiz) {
		writeError(w, domain.ErrUnauthorized)
		return domain.Identity{}, false
	}
	return identity, true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Websocket clients cannot set headers from a browser.
	return r.URL.Query().Get("token")
}

// decodeBody parses the JSON request body. optional allows an empty body.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSessionActive),
		errors.Is(err, domain.ErrAlreadySubmitted):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
