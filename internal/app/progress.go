package app

import (
	"context"

	"school-quiz-service/internal/domain"
)

// RecordInteraction registers a student's navigation step inside a live
// session and, when an answer accompanies it, routes the answer through the
// recorder first. questionsAnswered increments only when this interaction
// introduces the first answer for that question in the current generation;
// revisiting or re-answering leaves it unchanged. Completion is never
// inferred from the count; only Finalize completes a submission, otherwise
// a student reviewing the last question would be locked out prematurely.
func (s *Service) RecordInteraction(ctx context.Context, sessionID, studentID string, questionIndex int, answeredQuestionID string, selectedOption int) (domain.StudentProgress, error) {
	session, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return domain.StudentProgress{}, err
	}
	if session == nil {
		return domain.StudentProgress{}, domain.ErrSessionNotFound
	}

	quiz, err := s.catalog.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.StudentProgress{}, err
	}
	generation, err := s.store.Generation(ctx, quiz.ID)
	if err != nil {
		return domain.StudentProgress{}, err
	}

	now := s.now()
	progress, err := s.store.Progress(ctx, sessionID, studentID)
	if err != nil {
		return domain.StudentProgress{}, err
	}
	if progress == nil {
		progress = &domain.StudentProgress{
			SessionID: sessionID,
			StudentID: studentID,
			JoinedAt:  now,
		}
	}
	progress.CurrentQuestion = questionIndex + 1
	progress.LastActivity = now

	if answeredQuestionID != "" {
		_, created, err := s.recordAnswer(ctx, quiz, studentID, generation, answeredQuestionID, selectedOption)
		if err != nil {
			return domain.StudentProgress{}, err
		}
		if created {
			progress.QuestionsAnswered++
		}
	}

	if err := s.store.SaveProgress(ctx, *progress); err != nil {
		return domain.StudentProgress{}, err
	}
	return *progress, nil
}
