package app

import (
	"context"
	"errors"
	"time"

	"school-quiz-service/internal/domain"
)

// RecordAnswer scores a single answer and folds it into the student's
// submission for the given generation (current generation when gen <= 0).
// Correctness is judged by exact text match between the selected option and
// the question's designated answer; an out-of-range option index is scored
// incorrect rather than rejected, so a transient client desync never fails
// the real-time path. Completion is left untouched.
func (s *Service) RecordAnswer(ctx context.Context, quizID, studentID string, generation int, questionID string, selectedOption int) (domain.Submission, error) {
	quiz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Submission{}, err
	}
	if generation <= 0 {
		if generation, err = s.store.Generation(ctx, quizID); err != nil {
			return domain.Submission{}, err
		}
	}
	sub, _, err := s.recordAnswer(ctx, quiz, studentID, generation, questionID, selectedOption)
	return sub, err
}

// recordAnswer reports whether the answer was newly created, which is what
// lets RecordInteraction bump questionsAnswered exactly once per question.
// Upsert, recount, and submission update run inside one store transaction
// scoped to the (quiz, student, generation) key.
func (s *Service) recordAnswer(ctx context.Context, quiz domain.Quiz, studentID string, generation int, questionID string, selectedOption int) (domain.Submission, bool, error) {
	question := findQuestion(quiz, questionID)
	if question == nil {
		return domain.Submission{}, false, domain.ErrQuestionNotFound
	}
	answer := judge(*question, selectedOption)

	created := false
	sub, err := s.store.UpdateSubmission(ctx, quiz.ID, studentID, generation, func(sub *domain.Submission) error {
		sub.TotalScore = len(quiz.Questions)
		_, exists := sub.Answers[questionID]
		created = !exists
		sub.Answers[questionID] = answer
		sub.RecomputeScore()
		return nil
	})
	if err != nil {
		return domain.Submission{}, false, err
	}
	return sub, created, nil
}

// Finalize is the explicit-submit path: it scores the full answer map in one
// pass, replaces the submission's answer set, and marks it completed; the
// student's progress row in the active session follows suit. A
// generation may be finalized exactly once per student; a repeat call
// returns the existing submission together with domain.ErrAlreadySubmitted
// so retrying clients can treat it as success. A finalize arriving after the
// session stopped is still accepted: the student may have been mid-submission
// at the moment of stop.
func (s *Service) Finalize(ctx context.Context, quizID, studentID string, generation int, answers map[string]int) (domain.Submission, error) {
	quiz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Submission{}, err
	}
	if generation <= 0 {
		if generation, err = s.store.Generation(ctx, quizID); err != nil {
			return domain.Submission{}, err
		}
	}

	now := s.now()
	sub, err := s.store.UpdateSubmission(ctx, quizID, studentID, generation, func(sub *domain.Submission) error {
		if sub.Completed {
			return domain.ErrAlreadySubmitted
		}
		sub.TotalScore = len(quiz.Questions)
		sub.Answers = make(map[string]domain.Answer, len(answers))
		for _, q := range quiz.Questions {
			idx, ok := answers[q.ID]
			if !ok {
				continue
			}
			sub.Answers[q.ID] = judge(q, idx)
		}
		sub.RecomputeScore()
		sub.Completed = true
		sub.CompletedAt = &now
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrAlreadySubmitted) {
		return domain.Submission{}, err
	}
	if err == nil {
		s.markProgressCompleted(ctx, quizID, studentID, now)
	}
	return sub, err
}

// markProgressCompleted mirrors a successful finalize onto the student's
// progress row in the quiz's active session, if both exist. Best effort: the
// submission is already durable at this point.
func (s *Service) markProgressCompleted(ctx context.Context, quizID, studentID string, now time.Time) {
	session, err := s.store.ActiveSession(ctx, quizID)
	if err != nil || session == nil {
		return
	}
	progress, err := s.store.Progress(ctx, session.ID, studentID)
	if err != nil || progress == nil || progress.Completed {
		return
	}
	progress.Completed = true
	progress.LastActivity = now
	_ = s.store.SaveProgress(ctx, *progress)
}

func findQuestion(quiz domain.Quiz, questionID string) *domain.Question {
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == questionID {
			return &quiz.Questions[i]
		}
	}
	return nil
}

// judge resolves the selected option text and compares it to the question's
// designated answer. Out of range means no resolvable selection: incorrect.
func judge(q domain.Question, selectedOption int) domain.Answer {
	selected := ""
	if selectedOption >= 0 && selectedOption < len(q.Options) {
		selected = q.Options[selectedOption]
	}
	return domain.Answer{
		QuestionID: q.ID,
		Selected:   selected,
		Correct:    selected != "" && selected == q.Answer,
	}
}
