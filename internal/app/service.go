package app

import (
	"context"
	"time"

	"school-quiz-service/internal/domain"
)

// Store is the persistence boundary for live sessions, progress, and scored
// attempts. Implementations must serialize mutations per composite key:
// (session, student) for progress and (quiz, student, generation) for
// submissions. Different students never contend.
type Store interface {
	// CreateSession persists a new live session. It fails with
	// domain.ErrSessionActive when the quiz already has an active one, and
	// marks the quiz live as part of the same operation.
	CreateSession(ctx context.Context, s domain.LiveSession) error
	// ActiveSession returns the quiz's active session, or nil when none.
	ActiveSession(ctx context.Context, quizID string) (*domain.LiveSession, error)
	// SessionByID returns a session by its id, or nil when unknown.
	SessionByID(ctx context.Context, sessionID string) (*domain.LiveSession, error)
	// LatestSession returns the most recently started session for the quiz,
	// active or not, or nil when the quiz never went live.
	LatestSession(ctx context.Context, quizID string) (*domain.LiveSession, error)
	// EndActiveSession deactivates the active session (endedAt set) and
	// clears the quiz's live flag. Returns nil, nil when nothing was active.
	EndActiveSession(ctx context.Context, quizID string, endedAt time.Time) (*domain.LiveSession, error)

	// Generation returns the quiz's current generation counter (1 when the
	// quiz has never been restarted).
	Generation(ctx context.Context, quizID string) (int, error)
	// AdvanceGeneration atomically increments the counter and returns the
	// new value. Prior submissions are left untouched.
	AdvanceGeneration(ctx context.Context, quizID string) (int, error)
	// ResetResults deletes every submission (with its answers) for the quiz
	// across all generations and resets the counter to 1, atomically.
	ResetResults(ctx context.Context, quizID string) error

	// Progress returns the progress row for (session, student), nil when absent.
	Progress(ctx context.Context, sessionID, studentID string) (*domain.StudentProgress, error)
	// SaveProgress upserts a progress row keyed by (session, student).
	SaveProgress(ctx context.Context, p domain.StudentProgress) error
	// ProgressBySession lists all progress rows of one session.
	ProgressBySession(ctx context.Context, sessionID string) ([]domain.StudentProgress, error)

	// Submission returns the submission for (quiz, student, generation),
	// nil when absent.
	Submission(ctx context.Context, quizID, studentID string, generation int) (*domain.Submission, error)
	// UpdateSubmission finds or creates the submission for the key and runs
	// fn on it inside a transaction scoped to that key, persisting the
	// mutated submission when fn succeeds. When fn fails the stored
	// submission is left unchanged and returned alongside fn's error.
	UpdateSubmission(ctx context.Context, quizID, studentID string, generation int, fn func(*domain.Submission) error) (domain.Submission, error)
	// SubmissionsByGeneration lists all submissions (completed or not) for
	// one generation of a quiz.
	SubmissionsByGeneration(ctx context.Context, quizID string, generation int) ([]domain.Submission, error)
}

// QuizCatalog loads quiz content: which questions, which correct answers.
// Quiz CRUD itself lives outside this service.
type QuizCatalog interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Authenticator resolves a bearer token into an identity. Authentication is
// an external collaborator; this service only consumes its verdicts.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

// Service implements the live quiz engine: session registry, progress
// tracking, answer recording and scoring, ranking, and restarts.
type Service struct {
	store   Store
	catalog QuizCatalog
	now     func() time.Time
}

func NewService(store Store, catalog QuizCatalog) *Service {
	return &Service{store: store, catalog: catalog, now: time.Now}
}

// NewServiceWithClock is test-only for deterministic timestamps.
func NewServiceWithClock(store Store, catalog QuizCatalog, now func() time.Time) *Service {
	return &Service{store: store, catalog: catalog, now: now}
}

// Quiz exposes catalog content to transport for ownership checks and views.
func (s *Service) Quiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.catalog.GetQuiz(ctx, quizID)
}
