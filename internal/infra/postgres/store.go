package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"school-quiz-service/internal/domain"
)

type quizStateRow struct {
	bun.BaseModel `bun:"table:quiz_state"`

	QuizID     string `bun:"quiz_id,pk"`
	Generation int    `bun:"generation,notnull"`
	Live       bool   `bun:"live,notnull"`
}

type liveSessionRow struct {
	bun.BaseModel `bun:"table:live_sessions"`

	ID               string     `bun:"id,pk"`
	QuizID           string     `bun:"quiz_id,notnull"`
	Generation       int        `bun:"generation,notnull"`
	StartedAt        time.Time  `bun:"started_at,notnull"`
	EndedAt          *time.Time `bun:"ended_at"`
	Active           bool       `bun:"active,notnull"`
	TimeLimitMinutes int        `bun:"time_limit_minutes,notnull"`
}

type progressRow struct {
	bun.BaseModel `bun:"table:student_progress"`

	SessionID         string    `bun:"session_id,pk"`
	StudentID         string    `bun:"student_id,pk"`
	CurrentQuestion   int       `bun:"current_question,notnull"`
	QuestionsAnswered int       `bun:"questions_answered,notnull"`
	Completed         bool      `bun:"completed,notnull"`
	JoinedAt          time.Time `bun:"joined_at,notnull"`
	LastActivity      time.Time `bun:"last_activity,notnull"`
}

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions"`

	QuizID      string                   `bun:"quiz_id,pk"`
	StudentID   string                   `bun:"student_id,pk"`
	Generation  int                      `bun:"generation,pk"`
	Score       int                      `bun:"score,notnull"`
	TotalScore  int                      `bun:"total_score,notnull"`
	Percentage  float64                  `bun:"percentage,notnull"`
	Completed   bool                     `bun:"completed,notnull"`
	CompletedAt *time.Time               `bun:"completed_at"`
	Answers     map[string]domain.Answer `bun:"answers,type:jsonb"`
}

// Store is the bun-backed app.Store. Per-key serialization comes from the
// database: a partial unique index guarantees at most one active session per
// quiz, progress rows upsert on their composite key, and submission updates
// run in a transaction holding the submission's row lock.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateSession(ctx context.Context, session domain.LiveSession) error {
	row := liveSessionRow{
		ID:               session.ID,
		QuizID:           session.QuizID,
		Generation:       session.Generation,
		StartedAt:        session.StartedAt,
		EndedAt:          session.EndedAt,
		Active:           session.Active,
		TimeLimitMinutes: session.TimeLimitMinutes,
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrSessionActive
			}
			return err
		}
		return s.upsertState(ctx, tx, session.QuizID, func(state *quizStateRow) {
			state.Live = true
		})
	})
}

func (s *Store) ActiveSession(ctx context.Context, quizID string) (*domain.LiveSession, error) {
	row := new(liveSessionRow)
	err := s.db.NewSelect().Model(row).
		Where("quiz_id = ?", quizID).
		Where("active").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sessionFromRow(row), nil
}

func (s *Store) SessionByID(ctx context.Context, sessionID string) (*domain.LiveSession, error) {
	row := new(liveSessionRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sessionFromRow(row), nil
}

func (s *Store) LatestSession(ctx context.Context, quizID string) (*domain.LiveSession, error) {
	row := new(liveSessionRow)
	err := s.db.NewSelect().Model(row).
		Where("quiz_id = ?", quizID).
		Order("started_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sessionFromRow(row), nil
}

func (s *Store) EndActiveSession(ctx context.Context, quizID string, endedAt time.Time) (*domain.LiveSession, error) {
	var ended *domain.LiveSession
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(liveSessionRow)
		err := tx.NewUpdate().Model(row).
			Set("active = FALSE").
			Set("ended_at = ?", endedAt).
			Where("quiz_id = ?", quizID).
			Where("active").
			Returning("*").
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err == nil {
			ended = sessionFromRow(row)
		}
		return s.upsertState(ctx, tx, quizID, func(state *quizStateRow) {
			state.Live = false
		})
	})
	if err != nil {
		return nil, err
	}
	return ended, nil
}

func (s *Store) Generation(ctx context.Context, quizID string) (int, error) {
	row := new(quizStateRow)
	err := s.db.NewSelect().Model(row).Where("quiz_id = ?", quizID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Generation, nil
}

func (s *Store) AdvanceGeneration(ctx context.Context, quizID string) (int, error) {
	var generation int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quiz_state (quiz_id, generation, live) VALUES (?, 2, FALSE)
		ON CONFLICT (quiz_id) DO UPDATE SET generation = quiz_state.generation + 1
		RETURNING generation`, quizID).Scan(&generation)
	return generation, err
}

func (s *Store) ResetResults(ctx context.Context, quizID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*submissionRow)(nil)).Where("quiz_id = ?", quizID).Exec(ctx); err != nil {
			return err
		}
		return s.upsertState(ctx, tx, quizID, func(state *quizStateRow) {
			state.Generation = 1
		})
	})
}

func (s *Store) Progress(ctx context.Context, sessionID, studentID string) (*domain.StudentProgress, error) {
	row := new(progressRow)
	err := s.db.NewSelect().Model(row).
		Where("session_id = ?", sessionID).
		Where("student_id = ?", studentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := progressFromRow(row)
	return &p, nil
}

func (s *Store) SaveProgress(ctx context.Context, p domain.StudentProgress) error {
	row := progressRow{
		SessionID:         p.SessionID,
		StudentID:         p.StudentID,
		CurrentQuestion:   p.CurrentQuestion,
		QuestionsAnswered: p.QuestionsAnswered,
		Completed:         p.Completed,
		JoinedAt:          p.JoinedAt,
		LastActivity:      p.LastActivity,
	}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (session_id, student_id) DO UPDATE").
		Set("current_question = EXCLUDED.current_question").
		Set("questions_answered = EXCLUDED.questions_answered").
		Set("completed = EXCLUDED.completed").
		Set("last_activity = EXCLUDED.last_activity").
		Exec(ctx)
	return err
}

func (s *Store) ProgressBySession(ctx context.Context, sessionID string) ([]domain.StudentProgress, error) {
	var rows []progressRow
	if err := s.db.NewSelect().Model(&rows).Where("session_id = ?", sessionID).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.StudentProgress, 0, len(rows))
	for i := range rows {
		out = append(out, progressFromRow(&rows[i]))
	}
	return out, nil
}

func (s *Store) Submission(ctx context.Context, quizID, studentID string, generation int) (*domain.Submission, error) {
	row := new(submissionRow)
	err := s.db.NewSelect().Model(row).
		Where("quiz_id = ?", quizID).
		Where("student_id = ?", studentID).
		Where("generation = ?", generation).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub := submissionFromRow(row)
	return &sub, nil
}

func (s *Store) UpdateSubmission(ctx context.Context, quizID, studentID string, generation int, fn func(*domain.Submission) error) (domain.Submission, error) {
	var result domain.Submission
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(submissionRow)
		err := tx.NewSelect().Model(row).
			Where("quiz_id = ?", quizID).
			Where("student_id = ?", studentID).
			Where("generation = ?", generation).
			For("UPDATE").
			Scan(ctx)
		exists := true
		if errors.Is(err, sql.ErrNoRows) {
			exists = false
		} else if err != nil {
			return err
		}

		working := domain.Submission{
			QuizID:     quizID,
			StudentID:  studentID,
			Generation: generation,
			Answers:    map[string]domain.Answer{},
		}
		if exists {
			working = submissionFromRow(row)
		}

		if err := fn(&working); err != nil {
			if exists {
				result = submissionFromRow(row)
			} else {
				result = working
			}
			return err
		}

		saved := submissionRow{
			QuizID:      working.QuizID,
			StudentID:   working.StudentID,
			Generation:  working.Generation,
			Score:       working.Score,
			TotalScore:  working.TotalScore,
			Percentage:  working.Percentage,
			Completed:   working.Completed,
			CompletedAt: working.CompletedAt,
			Answers:     working.Answers,
		}
		if exists {
			_, err = tx.NewUpdate().Model(&saved).WherePK().Exec(ctx)
		} else {
			_, err = tx.NewInsert().Model(&saved).Exec(ctx)
		}
		if err != nil {
			return err
		}
		result = working
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrAlreadySubmitted) {
		return domain.Submission{}, err
	}
	return result, err
}

func (s *Store) SubmissionsByGeneration(ctx context.Context, quizID string, generation int) ([]domain.Submission, error) {
	var rows []submissionRow
	err := s.db.NewSelect().Model(&rows).
		Where("quiz_id = ?", quizID).
		Where("generation = ?", generation).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Submission, 0, len(rows))
	for i := range rows {
		out = append(out, submissionFromRow(&rows[i]))
	}
	return out, nil
}

func (s *Store) upsertState(ctx context.Context, tx bun.Tx, quizID string, mutate func(*quizStateRow)) error {
	state := quizStateRow{QuizID: quizID, Generation: 1}
	err := tx.NewSelect().Model(&state).Where("quiz_id = ?", quizID).For("UPDATE").Scan(ctx)
	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
		state = quizStateRow{QuizID: quizID, Generation: 1}
	} else if err != nil {
		return err
	}
	mutate(&state)
	if exists {
		_, err = tx.NewUpdate().Model(&state).WherePK().Exec(ctx)
	} else {
		_, err = tx.NewInsert().Model(&state).Exec(ctx)
	}
	return err
}

func sessionFromRow(row *liveSessionRow) *domain.LiveSession {
	return &domain.LiveSession{
		ID:               row.ID,
		QuizID:           row.QuizID,
		Generation:       row.Generation,
		StartedAt:        row.StartedAt,
		EndedAt:          row.EndedAt,
		Active:           row.Active,
		TimeLimitMinutes: row.TimeLimitMinutes,
	}
}

func progressFromRow(row *progressRow) domain.StudentProgress {
	return domain.StudentProgress{
		SessionID:         row.SessionID,
		StudentID:         row.StudentID,
		CurrentQuestion:   row.CurrentQuestion,
		QuestionsAnswered: row.QuestionsAnswered,
		Completed:         row.Completed,
		JoinedAt:          row.JoinedAt,
		LastActivity:      row.LastActivity,
	}
}

func submissionFromRow(row *submissionRow) domain.Submission {
	answers := row.Answers
	if answers == nil {
		answers = map[string]domain.Answer{}
	}
	return domain.Submission{
		QuizID:      row.QuizID,
		StudentID:   row.StudentID,
		Generation:  row.Generation,
		Score:       row.Score,
		TotalScore:  row.TotalScore,
		Percentage:  row.Percentage,
		Completed:   row.Completed,
		CompletedAt: row.CompletedAt,
		Answers:     answers,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}
