package app

import (
	"context"
	"math"
	"sort"
	"time"

	"school-quiz-service/internal/domain"
)

// Tie tolerance: entries within both bounds of their predecessor share its
// rank.
const (
	tiePercentage = 0.01
	tieWindow     = 1000 * time.Millisecond
)

// BuildLeaderboard materializes the tie-aware ranked view for one generation
// (current generation when gen <= 0). It is a point-in-time read with no
// locking and no side effects: repeated calls simply reflect whatever
// submissions exist at call time. Completed submissions are ranked by
// percentage descending, then completedAt ascending; ties within tolerance
// share a rank and the next distinct entry takes its 1-based sorted position
// (ties absorbed, not compressed). Participants who joined but never
// finalized are reported separately with a nil rank.
func (s *Service) BuildLeaderboard(ctx context.Context, quizID string, generation int) (domain.Leaderboard, error) {
	quiz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	current, err := s.store.Generation(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if generation <= 0 {
		generation = current
	}

	subs, err := s.store.SubmissionsByGeneration(ctx, quizID, generation)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	var completed []domain.Submission
	var incomplete []domain.LeaderboardEntry
	seen := make(map[string]bool, len(subs))
	for _, sub := range subs {
		seen[sub.StudentID] = true
		if sub.Completed && sub.CompletedAt != nil {
			completed = append(completed, sub)
			continue
		}
		incomplete = append(incomplete, domain.LeaderboardEntry{
			StudentID:         sub.StudentID,
			Score:             sub.Score,
			TotalScore:        sub.TotalScore,
			Percentage:        sub.Percentage,
			QuestionsAnswered: len(sub.Answers),
			Incomplete:        true,
		})
	}

	sort.Slice(completed, func(i, j int) bool {
		if completed[i].Percentage != completed[j].Percentage {
			return completed[i].Percentage > completed[j].Percentage
		}
		if !completed[i].CompletedAt.Equal(*completed[j].CompletedAt) {
			return completed[i].CompletedAt.Before(*completed[j].CompletedAt)
		}
		return completed[i].StudentID < completed[j].StudentID
	})

	ranked := make([]domain.LeaderboardEntry, 0, len(completed))
	for i, sub := range completed {
		rank := i + 1
		if i > 0 {
			prev := completed[i-1]
			dPct := math.Abs(sub.Percentage - prev.Percentage)
			dTime := sub.CompletedAt.Sub(*prev.CompletedAt)
			if dTime < 0 {
				dTime = -dTime
			}
			if dPct < tiePercentage && dTime < tieWindow {
				rank = *ranked[i-1].Rank
			}
		}
		r := rank
		ranked = append(ranked, domain.LeaderboardEntry{
			StudentID:         sub.StudentID,
			Rank:              &r,
			Score:             sub.Score,
			TotalScore:        sub.TotalScore,
			Percentage:        sub.Percentage,
			CompletedAt:       sub.CompletedAt,
			QuestionsAnswered: len(sub.Answers),
		})
	}

	session, err := s.store.LatestSession(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	// Progress rows are session-scoped, so "still working" participants with
	// no submission yet are only visible for the current generation, and only
	// when the latest session actually ran under it. A session left over from
	// before a restart must not leak its joiners onto the new round's board.
	if generation == current && session != nil && session.Generation == generation {
		rows, err := s.store.ProgressBySession(ctx, session.ID)
		if err != nil {
			return domain.Leaderboard{}, err
		}
		for _, p := range rows {
			if seen[p.StudentID] {
				continue
			}
			incomplete = append(incomplete, domain.LeaderboardEntry{
				StudentID:         p.StudentID,
				TotalScore:        len(quiz.Questions),
				QuestionsAnswered: p.QuestionsAnswered,
				Incomplete:        true,
			})
		}
	}
	sort.Slice(incomplete, func(i, j int) bool {
		return incomplete[i].StudentID < incomplete[j].StudentID
	})

	stats := domain.LeaderboardStats{
		Participants: len(ranked) + len(incomplete),
		Completed:    len(ranked),
	}
	if len(ranked) > 0 {
		sum := 0.0
		stats.HighestPercentage = ranked[0].Percentage
		stats.LowestPercentage = ranked[0].Percentage
		for _, e := range ranked {
			sum += e.Percentage
			if e.Percentage > stats.HighestPercentage {
				stats.HighestPercentage = e.Percentage
			}
			if e.Percentage < stats.LowestPercentage {
				stats.LowestPercentage = e.Percentage
			}
		}
		stats.AveragePercentage = sum / float64(len(ranked))
	}
	if session != nil && session.Generation == generation && session.EndedAt != nil {
		secs := session.EndedAt.Sub(session.StartedAt).Seconds()
		stats.SessionSeconds = &secs
	}

	return domain.Leaderboard{
		QuizID:     quizID,
		Generation: generation,
		Ranked:     ranked,
		Incomplete: incomplete,
		Stats:      stats,
		BuiltAt:    s.now(),
	}, nil
}
