package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"school-quiz-service/internal/domain"
)

func TestCreateSessionSingleActive(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first := domain.LiveSession{ID: "sess-1", QuizID: "quiz-1", StartedAt: time.Now(), Active: true}
	if err := store.CreateSession(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.CreateSession(ctx, domain.LiveSession{ID: "sess-2", QuizID: "quiz-1", Active: true})
	if !errors.Is(err, domain.ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}

	// A different quiz is unaffected.
	if err := store.CreateSession(ctx, domain.LiveSession{ID: "sess-3", QuizID: "quiz-2", Active: true}); err != nil {
		t.Fatalf("create for other quiz: %v", err)
	}

	ended, err := store.EndActiveSession(ctx, "quiz-1", time.Now())
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended == nil || ended.ID != "sess-1" || ended.Active || ended.EndedAt == nil {
		t.Fatalf("unexpected ended session: %+v", ended)
	}

	if err := store.CreateSession(ctx, domain.LiveSession{ID: "sess-4", QuizID: "quiz-1", Active: true}); err != nil {
		t.Fatalf("create after end: %v", err)
	}
}

func TestEndActiveSessionNoActive(t *testing.T) {
	store := NewStore()
	ended, err := store.EndActiveSession(context.Background(), "quiz-1", time.Now())
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended != nil {
		t.Fatalf("expected nil session, got %+v", ended)
	}
}

func TestLatestSessionOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Now()

	if err := store.CreateSession(ctx, domain.LiveSession{ID: "old", QuizID: "quiz-1", StartedAt: base, Active: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.EndActiveSession(ctx, "quiz-1", base.Add(time.Minute)); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := store.CreateSession(ctx, domain.LiveSession{ID: "new", QuizID: "quiz-1", StartedAt: base.Add(2 * time.Minute), Active: true}); err != nil {
		t.Fatalf("create: %v", err)
	}

	latest, err := store.LatestSession(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.ID != "new" {
		t.Fatalf("expected newest session, got %+v", latest)
	}
}

func TestGenerationLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	gen, err := store.Generation(ctx, "quiz-1")
	if err != nil || gen != 1 {
		t.Fatalf("fresh generation = %d, %v", gen, err)
	}

	gen, err = store.AdvanceGeneration(ctx, "quiz-1")
	if err != nil || gen != 2 {
		t.Fatalf("advance = %d, %v", gen, err)
	}
	gen, err = store.AdvanceGeneration(ctx, "quiz-1")
	if err != nil || gen != 3 {
		t.Fatalf("advance = %d, %v", gen, err)
	}

	if _, err := store.UpdateSubmission(ctx, "quiz-1", "s1", 3, func(sub *domain.Submission) error {
		sub.Completed = true
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := store.ResetResults(ctx, "quiz-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	gen, err = store.Generation(ctx, "quiz-1")
	if err != nil || gen != 1 {
		t.Fatalf("generation after reset = %d, %v", gen, err)
	}
	subs, err := store.SubmissionsByGeneration(ctx, "quiz-1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected submissions purged, got %d", len(subs))
	}
}

func TestUpdateSubmissionRollbackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if _, err := store.UpdateSubmission(ctx, "quiz-1", "s1", 1, func(sub *domain.Submission) error {
		sub.Score = 5
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	boom := errors.New("boom")
	got, err := store.UpdateSubmission(ctx, "quiz-1", "s1", 1, func(sub *domain.Submission) error {
		sub.Score = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if got.Score != 5 {
		t.Fatalf("failed update leaked: score = %d", got.Score)
	}

	stored, err := store.Submission(ctx, "quiz-1", "s1", 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if stored.Score != 5 {
		t.Fatalf("stored score mutated to %d", stored.Score)
	}
}

func TestUpdateSubmissionIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	sub, err := store.UpdateSubmission(ctx, "quiz-1", "s1", 1, func(sub *domain.Submission) error {
		sub.Answers["q1"] = domain.Answer{QuestionID: "q1", Selected: "4", Correct: true}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	// Mutating the returned copy must not touch the stored value.
	sub.Answers["q1"] = domain.Answer{QuestionID: "q1", Selected: "3"}

	stored, err := store.Submission(ctx, "quiz-1", "s1", 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := stored.Answers["q1"]; !got.Correct || got.Selected != "4" {
		t.Fatalf("stored answer mutated: %+v", got)
	}
}

func TestConcurrentUpdateSubmission(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdateSubmission(ctx, "quiz-1", "s1", 1, func(sub *domain.Submission) error {
				sub.Score++
				return nil
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, err := store.Submission(ctx, "quiz-1", "s1", 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if stored.Score != workers {
		t.Fatalf("lost updates: score = %d, want %d", stored.Score, workers)
	}
}

func TestProgressRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	p, err := store.Progress(ctx, "sess-1", "s1")
	if err != nil || p != nil {
		t.Fatalf("expected no progress, got %+v, %v", p, err)
	}

	want := domain.StudentProgress{SessionID: "sess-1", StudentID: "s1", CurrentQuestion: 3, QuestionsAnswered: 2}
	if err := store.SaveProgress(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveProgress(ctx, domain.StudentProgress{SessionID: "sess-1", StudentID: "s2", CurrentQuestion: 1}); err != nil {
		t.Fatalf("save: %v", err)
	}

	p, err = store.Progress(ctx, "sess-1", "s1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if p.CurrentQuestion != 3 || p.QuestionsAnswered != 2 {
		t.Fatalf("unexpected progress: %+v", p)
	}

	all, err := store.ProgressBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(all))
	}
}
