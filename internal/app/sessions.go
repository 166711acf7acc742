package app

import (
	"context"

	"github.com/google/uuid"

	"school-quiz-service/internal/domain"
)

// StartSession opens a live session for the quiz. It fails with
// domain.ErrSessionActive when one is already running. Participants are not
// pre-provisioned; progress rows appear lazily on first interaction, which
// avoids a roster fetch at start time and tolerates late joiners.
func (s *Service) StartSession(ctx context.Context, quizID string, timeLimitMinutes int) (domain.LiveSession, error) {
	if _, err := s.catalog.GetQuiz(ctx, quizID); err != nil {
		return domain.LiveSession{}, err
	}

	active, err := s.store.ActiveSession(ctx, quizID)
	if err != nil {
		return domain.LiveSession{}, err
	}
	if active != nil {
		return domain.LiveSession{}, domain.ErrSessionActive
	}

	generation, err := s.store.Generation(ctx, quizID)
	if err != nil {
		return domain.LiveSession{}, err
	}

	session := domain.LiveSession{
		ID:               uuid.NewString(),
		QuizID:           quizID,
		Generation:       generation,
		StartedAt:        s.now(),
		Active:           true,
		TimeLimitMinutes: timeLimitMinutes,
	}
	// CreateSession re-checks under the store's own atomicity, so two racing
	// starts cannot both slip past the lookup above.
	if err := s.store.CreateSession(ctx, session); err != nil {
		return domain.LiveSession{}, err
	}
	return session, nil
}

// StopSession ends the quiz's active session and clears its live flag.
// Idempotent: stopping with nothing active is a no-op success, so duplicate
// stop requests (manual plus client-side "time's up") are harmless. In-flight
// answer and finalize calls are not invalidated.
func (s *Service) StopSession(ctx context.Context, quizID string) error {
	if _, err := s.catalog.GetQuiz(ctx, quizID); err != nil {
		return err
	}
	_, err := s.store.EndActiveSession(ctx, quizID, s.now())
	return err
}

// ActiveSession returns the quiz's currently running session, nil when none.
func (s *Service) ActiveSession(ctx context.Context, quizID string) (*domain.LiveSession, error) {
	if _, err := s.catalog.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	return s.store.ActiveSession(ctx, quizID)
}
