package memory

import (
	"context"
	"sync"
	"time"

	"school-quiz-service/internal/domain"
)

type submissionKey struct {
	studentID  string
	generation int
}

// Store is the in-memory app.Store. A single mutex serializes every
// mutation, which trivially satisfies the per-key atomicity the service
// requires; the Postgres store relaxes this to row-level locking.
type Store struct {
	mu          sync.RWMutex
	states      map[string]domain.QuizState
	sessions    map[string]domain.LiveSession
	progress    map[string]map[string]domain.StudentProgress
	submissions map[string]map[submissionKey]domain.Submission
}

func NewStore() *Store {
	return &Store{
		states:      make(map[string]domain.QuizState),
		sessions:    make(map[string]domain.LiveSession),
		progress:    make(map[string]map[string]domain.StudentProgress),
		submissions: make(map[string]map[submissionKey]domain.Submission),
	}
}

func (s *Store) CreateSession(_ context.Context, session domain.LiveSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sessions {
		if existing.QuizID == session.QuizID && existing.Active {
			return domain.ErrSessionActive
		}
	}
	s.sessions[session.ID] = session

	state := s.stateLocked(session.QuizID)
	state.Live = true
	s.states[session.QuizID] = state
	return nil
}

func (s *Store) ActiveSession(_ context.Context, quizID string) (*domain.LiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.QuizID == quizID && session.Active {
			out := session
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) SessionByID(_ context.Context, sessionID string) (*domain.LiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := session
	return &out, nil
}

func (s *Store) LatestSession(_ context.Context, quizID string) (*domain.LiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.LiveSession
	for _, session := range s.sessions {
		if session.QuizID != quizID {
			continue
		}
		session := session
		if latest == nil || session.StartedAt.After(latest.StartedAt) {
			latest = &session
		}
	}
	return latest, nil
}

func (s *Store) EndActiveSession(_ context.Context, quizID string, endedAt time.Time) (*domain.LiveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(quizID)
	state.Live = false
	s.states[quizID] = state

	for id, session := range s.sessions {
		if session.QuizID == quizID && session.Active {
			session.Active = false
			t := endedAt
			session.EndedAt = &t
			s.sessions[id] = session
			out := session
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) Generation(_ context.Context, quizID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, ok := s.states[quizID]; ok {
		return state.Generation, nil
	}
	return 1, nil
}

func (s *Store) AdvanceGeneration(_ context.Context, quizID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.stateLocked(quizID)
	state.Generation++
	s.states[quizID] = state
	return state.Generation, nil
}

func (s *Store) ResetResults(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.submissions, quizID)
	state := s.stateLocked(quizID)
	state.Generation = 1
	s.states[quizID] = state
	return nil
}

func (s *Store) Progress(_ context.Context, sessionID, studentID string) (*domain.StudentProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.progress[sessionID][studentID]; ok {
		out := p
		return &out, nil
	}
	return nil, nil
}

func (s *Store) SaveProgress(_ context.Context, p domain.StudentProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.progress[p.SessionID]
	if !ok {
		rows = make(map[string]domain.StudentProgress)
		s.progress[p.SessionID] = rows
	}
	rows[p.StudentID] = p
	return nil
}

func (s *Store) ProgressBySession(_ context.Context, sessionID string) ([]domain.StudentProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.progress[sessionID]
	out := make([]domain.StudentProgress, 0, len(rows))
	for _, p := range rows {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) Submission(_ context.Context, quizID, studentID string, generation int) (*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sub, ok := s.submissions[quizID][submissionKey{studentID, generation}]; ok {
		out := sub.Clone()
		return &out, nil
	}
	return nil, nil
}

func (s *Store) UpdateSubmission(_ context.Context, quizID, studentID string, generation int, fn func(*domain.Submission) error) (domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := submissionKey{studentID, generation}
	subs, ok := s.submissions[quizID]
	if !ok {
		subs = make(map[submissionKey]domain.Submission)
		s.submissions[quizID] = subs
	}

	stored, exists := subs[key]
	working := domain.Submission{
		QuizID:     quizID,
		StudentID:  studentID,
		Generation: generation,
		Answers:    map[string]domain.Answer{},
	}
	if exists {
		working = stored.Clone()
	}

	if err := fn(&working); err != nil {
		if exists {
			return stored.Clone(), err
		}
		return working, err
	}
	subs[key] = working
	return working.Clone(), nil
}

func (s *Store) SubmissionsByGeneration(_ context.Context, quizID string, generation int) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Submission
	for key, sub := range s.submissions[quizID] {
		if key.generation == generation {
			out = append(out, sub.Clone())
		}
	}
	return out, nil
}

// stateLocked returns the quiz state, defaulting to generation 1.
func (s *Store) stateLocked(quizID string) domain.QuizState {
	if state, ok := s.states[quizID]; ok {
		return state
	}
	return domain.QuizState{QuizID: quizID, Generation: 1}
}
