package domain

import "time"

// Role identifies what an authenticated caller may do.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Identity is the resolved caller, supplied by the external auth collaborator.
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// CanManage reports whether the identity may start/stop/restart the quiz.
func (id Identity) CanManage(quiz Quiz) bool {
	if id.Role == RoleAdmin {
		return true
	}
	return id.Role == RoleTeacher && quiz.OwnerID == id.UserID
}

// Question models an MCQ question. Correctness is judged by comparing the
// selected option's text against Answer (exact match), not by option index.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Answer  string   `json:"answer"`
}

// Quiz is the catalog view of a quiz: identity, owner, ordered questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	OwnerID   string     `json:"ownerId"`
	Questions []Question `json:"questions"`
}

// QuizState is the engine-owned per-quiz state: the generation counter that
// scopes submissions across restarts, plus whether the quiz is currently live.
type QuizState struct {
	QuizID     string `json:"quizId"`
	Generation int    `json:"generation"`
	Live       bool   `json:"live"`
}

// LiveSession is the real-time window during which students interact with a
// quiz. At most one active session exists per quiz at any time. Generation
// records the quiz generation the session was started under, so reads can
// tell whether a session belongs to the round they are looking at.
type LiveSession struct {
	ID               string     `json:"id"`
	QuizID           string     `json:"quizId"`
	Generation       int        `json:"generation"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	Active           bool       `json:"active"`
	TimeLimitMinutes int        `json:"timeLimitMinutes,omitempty"`
}

// StudentProgress tracks a student's navigation inside one live session.
// Created lazily on first interaction, never pre-provisioned.
type StudentProgress struct {
	SessionID         string    `json:"sessionId"`
	StudentID         string    `json:"studentId"`
	CurrentQuestion   int       `json:"currentQuestion"` // 1-based display position
	QuestionsAnswered int       `json:"questionsAnswered"`
	Completed         bool      `json:"completed"`
	JoinedAt          time.Time `json:"joinedAt"`
	LastActivity      time.Time `json:"lastActivity"`
}

// Answer is a student's recorded selection for one question with the
// server-computed correctness verdict. Re-answering overwrites in place.
type Answer struct {
	QuestionID string `json:"questionId"`
	Selected   string `json:"selected"`
	Correct    bool   `json:"correct"`
}

// Submission is a student's scored attempt at a quiz within one generation.
// Keyed by (quiz, student, generation) rather than by session id so results
// outlive the originating live session row.
type Submission struct {
	QuizID      string            `json:"quizId"`
	StudentID   string            `json:"studentId"`
	Generation  int               `json:"generation"`
	Score       int               `json:"score"`
	TotalScore  int               `json:"totalScore"`
	Percentage  float64           `json:"percentage"`
	Completed   bool              `json:"completed"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Answers     map[string]Answer `json:"answers"` // question id -> answer
}

// RecomputeScore recounts correct answers and refreshes the percentage.
// Always a full recount; incremental adjustment drifts when an answer flips
// between correct and incorrect.
func (s *Submission) RecomputeScore() {
	score := 0
	for _, a := range s.Answers {
		if a.Correct {
			score++
		}
	}
	s.Score = score
	if s.TotalScore > 0 {
		s.Percentage = float64(s.Score) / float64(s.TotalScore) * 100
	} else {
		s.Percentage = 0
	}
}

// Clone returns a deep copy so stores can hand out submissions without
// sharing the answer map with callers.
func (s *Submission) Clone() Submission {
	out := *s
	out.Answers = make(map[string]Answer, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// LeaderboardEntry is one leaderboard row. Rank is nil for participants who
// have not finalized yet.
type LeaderboardEntry struct {
	StudentID         string     `json:"studentId"`
	Rank              *int       `json:"rank"`
	Score             int        `json:"score"`
	TotalScore        int        `json:"totalScore"`
	Percentage        float64    `json:"percentage"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	QuestionsAnswered int        `json:"questionsAnswered"`
	Incomplete        bool       `json:"isIncomplete"`
}

// LeaderboardStats aggregates one generation's completed submissions.
type LeaderboardStats struct {
	Participants      int      `json:"participants"`
	Completed         int      `json:"completed"`
	AveragePercentage float64  `json:"averagePercentage"`
	HighestPercentage float64  `json:"highestPercentage"`
	LowestPercentage  float64  `json:"lowestPercentage"`
	SessionSeconds    *float64 `json:"sessionSeconds,omitempty"`
}

// Leaderboard is the tie-aware ranked view over one generation.
type Leaderboard struct {
	QuizID     string             `json:"quizId"`
	Generation int                `json:"generation"`
	Ranked     []LeaderboardEntry `json:"ranked"`
	Incomplete []LeaderboardEntry `json:"incomplete"`
	Stats      LeaderboardStats   `json:"stats"`
	BuiltAt    time.Time          `json:"builtAt"`
}

// RestartMode says what Restart did to prior results.
type RestartMode string

const (
	RestartModeReset    RestartMode = "reset"    // purged, generation back to 1
	RestartModeNewRound RestartMode = "newRound" // history kept, generation bumped
)

// RestartResult reports the generation now in effect after a restart.
type RestartResult struct {
	Generation int         `json:"generation"`
	Mode       RestartMode `json:"mode"`
}
