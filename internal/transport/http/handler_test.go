package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/domain"
	"school-quiz-service/internal/infra/memory"
	transport "school-quiz-service/internal/transport/http"
)

const (
	teacherToken      = "teacher-token"
	otherTeacherToken = "other-teacher-token"
	adminToken        = "admin-token"
	studentToken      = "student-token"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	quiz := domain.Quiz{
		ID:      "quiz-1",
		Title:   "Arithmetic warm-up",
		OwnerID: "teacher-1",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "2+2?", Options: []string{"3", "4", "5"}, Answer: "4"},
			{ID: "q2", Prompt: "9/3?", Options: []string{"3", "6", "9"}, Answer: "3"},
		},
	}
	catalog := memory.NewCatalog(memory.NewStaticCatalogLoader(map[string]domain.Quiz{quiz.ID: quiz}), time.Minute)
	auth := memory.NewStaticAuthenticator(map[string]domain.Identity{
		teacherToken:      {UserID: "teacher-1", Role: domain.RoleTeacher},
		otherTeacherToken: {UserID: "teacher-2", Role: domain.RoleTeacher},
		adminToken:        {UserID: "admin-1", Role: domain.RoleAdmin},
		studentToken:      {UserID: "student-1", Role: domain.RoleStudent},
	})
	service := app.NewService(memory.NewStore(), catalog)

	mux := http.NewServeMux()
	transport.NewHandler(service, auth).Register(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func startSession(t *testing.T, mux *http.ServeMux) domain.LiveSession {
	t.Helper()
	rr := doJSON(t, mux, http.MethodPost, "/quizzes/quiz-1/session/start", teacherToken, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("start session: status %d: %s", rr.Code, rr.Body.String())
	}
	var session domain.LiveSession
	decode(t, rr, &session)
	return session
}

func TestAuthRequired(t *testing.T) {
	mux := newTestMux(t)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/quizzes/quiz-1/session/start"},
		{http.MethodGet, "/quizzes/quiz-1/session"},
		{http.MethodGet, "/quizzes/quiz-1/leaderboard"},
		{http.MethodPost, "/quizzes/quiz-1/restart"},
	} {
		rr := doJSON(t, mux, tc.method, tc.path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s without token: status %d", tc.method, tc.path, rr.Code)
		}
	}
}

func TestManagerChecks(t *testing.T) {
	mux := newTestMux(t)

	// A teacher who does not own the quiz cannot start it.
	rr := doJSON(t, mux, http.MethodPost, "/quizzes/quiz-1/session/start", otherTeacherToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign teacher start: status %d", rr.Code)
	}

	// Students cannot start sessions either.
	rr = doJSON(t, mux, http.MethodPost, "/quizzes/quiz-1/session/start", studentToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("student start: status %d", rr.Code)
	}

	// Admins may manage any quiz.
	rr = doJSON(t, mux, http.MethodPost, "/quizzes/quiz-1/session/start", adminToken, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("admin start: status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestStartSessionConflictStatus(t *testing.T) {
	mux := newTestMux(t)
	startSession(t, mux)

	rr := doJSON(t, mux, http.MethodPost, "/quizzes/quiz-1/session/start", teacherToken, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second start: status %d", rr.Code)
	}
}

func TestUnknownQuizNotFound(t *testing.T) {
	mux := newTestMux(t)
	rr := doJSON(t, mux, http.MethodPost, "/quizzes/nope/session/start", teacherToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown quiz: status %d", rr.Code)
	}
}

func TestSessionStatusEndpoint(t *testing.T) {
	mux := newTestMux(t)

	rr := doJSON(t, mux, http.MethodGet, "/quizzes/quiz-1/session", studentToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	var inactive map[string]any
	decode(t, rr, &inactive)
	if inactive["active"] != false {
		t.Fatalf("expected inactive marker, got %v", inactive)
	}

	session := startSession(t, mux)
	rr = doJSON(t, mux, http.MethodGet, "/quizzes/quiz-1/session", studentToken, nil)
	var live domain.LiveSession
	decode(t, rr, &live)
	if live.ID != session.ID || !live.Active {
		t.Fatalf("unexpected live session: %+v", live)
	}
}

func TestInteractionFlow(t *testing.T) {
	mux := newTestMux(t)
	session := startSession(t, mux)
	selected := 1

	rr := doJSON(t, mux, http.MethodPost, "/sessions/"+session.ID+"/interactions", studentToken, map[string]any{
		"questionIndex":  0,
		"questionId":     "q1",
		"selectedOption": selected,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("interaction: status %d: %s", rr.Code, rr.Body.String())
	}
	var progress domain.StudentProgress
	decode(t, rr, &progress)
	if progress.CurrentQuestion != 1 || progress.QuestionsAnswered != 1 {
		t.Fatalf("unexpected progress: %+v", progress)
	}

	// Navigation-only interaction moves the cursor without answering.
	rr = doJSON(t, mux, http.MethodPost, "/sessions/"+session.ID+"/interactions", studentToken, map[string]any{
		"questionIndex": 1,
	})
	decode(t, rr, &progress)
	if progress.CurrentQuestion != 2 || progress.QuestionsAnswered != 1 {
		t.Fatalf("unexpected progress after navigation: %+v", progress)
	}

	// Teachers do not record interactions.
	rr = doJSON(t, mux, http.MethodPost, "/sessions/"+session.ID+"/interactions", teacherToken, map[string]any{
		"questionIndex": 0,
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("teacher interaction: status %d", rr.Code)
	}

	rr = doJSON(t, mux, http.MethodPost, "/sessions/unknown/interactions", studentToken, map[string]any{
		"questionIndex": 0,
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown session: status %d", rr.Code)
	}
}

func TestFinalizeAndRetry(t *testing.T) {
	mux := newTestMux(t)
	startSession(t, mux)

	body := map[string]any{"answers": map[string]int{"q1": 1, "q2": 2}}
	rr := doJSON(t, mux, http.MethodPost, "/quizzes/quiz-1/submissions", studentToken, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("finalize: status %d: %s", rr.Code, rr.Body.String())
	}
	var first struct {
		Submission       domain.Submission `json:"submission"`
		AlreadySubmitted bool              `json:"alreadySubmitted"`
	}
	decode(t, rr, &first)
	if first.AlreadySubmitted {
		t.Fatalf("first finalize flagged as duplicate")
	}
	if first.Submission.Score != 1 || first.Submission.Percentage != 50 {
		t.Fatalf("unexpected submission: %+v", first.Submission)
	}

	// Retransmission returns the stored result as a 200.
	rr = doJSON(t, mux, http.MethodPost, "/quizzes/quiz-1/submissions", studentToken, map[string]any{
		"answers": map[string]int{"q1": 0, "q2": 0},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("retry finalize: status %d: %s", rr.Code, rr.Body.String())
	}
	var second struct {
		Submission       domain.Submission `json:"submission"`
		AlreadySubmitted bool              `json:"alreadySubmitted"`
	}
	decode(t, rr, &second)
	if !second.AlreadySubmitted {
		t.Fatalf("retry not flagged as duplicate")
	}
	if second.Submission.Score != first.Submission.Score {
		t.Fatalf("retry rescored: %+v vs %+v", second.Submission, first.Submission)
	}
}

func TestRestartEndpoint(t *testing.T) {
	mux := newTestMux(t)
	startSession(t, mux)

	rr := doJSON(t, mux, http.MethodPost, "/quizzes/quiz-1/submissions", studentToken, map[string]any{
		"answers": map[string]int{"q1": 1},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("finalize: status %d", rr.Code)
	}

	rr = doJSON(t, mux, http.MethodPost, "/quizzes/quiz-1/restart", teacherToken, map[string]any{
		"clearPreviousResults": false,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("restart: status %d: %s", rr.Code, rr.Body.String())
	}
	var result domain.RestartResult
	decode(t, rr, &result)
	if result.Generation != 2 || result.Mode != domain.RestartModeNewRound {
		t.Fatalf("unexpected restart result: %+v", result)
	}

	// The restart ended the active session.
	rr = doJSON(t, mux, http.MethodGet, "/quizzes/quiz-1/session", studentToken, nil)
	var status map[string]any
	decode(t, rr, &status)
	if status["active"] != false {
		t.Fatalf("session survived restart: %v", status)
	}

	rr = doJSON(t, mux, http.MethodPost, "/quizzes/quiz-1/restart", teacherToken, map[string]any{
		"clearPreviousResults": true,
	})
	decode(t, rr, &result)
	if result.Generation != 1 || result.Mode != domain.RestartModeReset {
		t.Fatalf("unexpected reset result: %+v", result)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	mux := newTestMux(t)
	startSession(t, mux)

	rr := doJSON(t, mux, http.MethodPost, "/quizzes/quiz-1/submissions", studentToken, map[string]any{
		"answers": map[string]int{"q1": 1, "q2": 0},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("finalize: status %d", rr.Code)
	}

	rr = doJSON(t, mux, http.MethodGet, "/quizzes/quiz-1/leaderboard", studentToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("leaderboard: status %d: %s", rr.Code, rr.Body.String())
	}
	var lb domain.Leaderboard
	decode(t, rr, &lb)
	if lb.Generation != 1 || len(lb.Ranked) != 1 {
		t.Fatalf("unexpected leaderboard: %+v", lb)
	}
	if lb.Ranked[0].Percentage != 100 || lb.Ranked[0].Rank == nil || *lb.Ranked[0].Rank != 1 {
		t.Fatalf("unexpected entry: %+v", lb.Ranked[0])
	}

	rr = doJSON(t, mux, http.MethodGet, "/quizzes/quiz-1/leaderboard?generation=abc", studentToken, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad generation: status %d", rr.Code)
	}

	// A past generation with no results is an empty board, not an error.
	rr = doJSON(t, mux, http.MethodGet, fmt.Sprintf("/quizzes/quiz-1/leaderboard?generation=%d", 1), studentToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("explicit generation: status %d", rr.Code)
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	mux := newTestMux(t)
	session := startSession(t, mux)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+session.ID+"/interactions", bytes.NewBufferString("{oops"))
	req.Header.Set("Authorization", "Bearer "+studentToken)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", rr.Code)
	}
}
