package app

import (
	"context"

	"school-quiz-service/internal/domain"
)

// Restart re-arms the quiz for a fresh round without a new question set.
// With clearPreviousResults it deletes every submission and answer for the
// quiz across all generations and resets the counter to 1; destructive and
// irreversible, callers must warn. Without it the generation counter is
// advanced and all prior submissions stay addressable as immutable history
// under their original generation number. Any active session is ended first:
// starting a new round while the old one is live would let the two drift.
func (s *Service) Restart(ctx context.Context, quizID string, clearPreviousResults bool) (domain.RestartResult, error) {
	if _, err := s.catalog.GetQuiz(ctx, quizID); err != nil {
		return domain.RestartResult{}, err
	}

	if _, err := s.store.EndActiveSession(ctx, quizID, s.now()); err != nil {
		return domain.RestartResult{}, err
	}

	if clearPreviousResults {
		if err := s.store.ResetResults(ctx, quizID); err != nil {
			return domain.RestartResult{}, err
		}
		return domain.RestartResult{Generation: 1, Mode: domain.RestartModeReset}, nil
	}

	generation, err := s.store.AdvanceGeneration(ctx, quizID)
	if err != nil {
		return domain.RestartResult{}, err
	}
	return domain.RestartResult{Generation: generation, Mode: domain.RestartModeNewRound}, nil
}

// Generation exposes the quiz's current generation counter to transport.
func (s *Service) Generation(ctx context.Context, quizID string) (int, error) {
	if _, err := s.catalog.GetQuiz(ctx, quizID); err != nil {
		return 0, err
	}
	return s.store.Generation(ctx, quizID)
}
