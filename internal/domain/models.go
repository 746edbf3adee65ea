package domain

import (
	"fmt"
	"time"
)

// SessionState tracks the coarse lifecycle of a live session.
type SessionState string

const (
	StateCreated   SessionState = "created"
	StateWaiting   SessionState = "waiting"
	StateLive      SessionState = "live"
	StateCompleted SessionState = "completed"
)

// QuestionPhase is the per-question sub-state while a session is live.
type QuestionPhase string

const (
	PhaseQuestionActive QuestionPhase = "question_active"
	PhaseQuestionEnded  QuestionPhase = "question_ended"
)

// Question models an MCQ item. The correct answer is identified by option
// text rather than index, so reordering options never changes the answer.
// Validate rejects duplicate option text to keep that comparison unambiguous.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correctOption"`
}

// Validate checks structural constraints on a single question.
func (q Question) Validate() error {
	if len(q.Options) < 2 || len(q.Options) > 6 {
		return fmt.Errorf("question %q: %w: needs 2-6 options, has %d", q.ID, ErrQuizInvalid, len(q.Options))
	}
	seen := make(map[string]struct{}, len(q.Options))
	correctFound := false
	for _, opt := range q.Options {
		if _, dup := seen[opt]; dup {
			return fmt.Errorf("question %q: %w: duplicate option %q", q.ID, ErrQuizInvalid, opt)
		}
		seen[opt] = struct{}{}
		if opt == q.CorrectOption {
			correctFound = true
		}
	}
	if !correctFound {
		return fmt.Errorf("question %q: %w: correct option %q not among options", q.ID, ErrQuizInvalid, q.CorrectOption)
	}
	return nil
}

// HasOption reports whether text is one of the question's options.
func (q Question) HasOption(text string) bool {
	for _, opt := range q.Options {
		if opt == text {
			return true
		}
	}
	return false
}

// Quiz is the immutable question set a session runs over.
type Quiz struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	TimeLimitSec int        `json:"timeLimitSec"` // per question; 0 falls back to the configured default
	Questions    []Question `json:"questions"`
}

// Validate checks the quiz is a runnable question set.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz %q: %w: no questions", q.ID, ErrQuizInvalid)
	}
	for _, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Participant is a scored member of a session. Students and anonymous guests
// are treated uniformly once they carry an ID and a display name.
type Participant struct {
	ID            string
	DisplayName   string
	Score         int
	JoinOrder     int
	JoinedAt      time.Time
	LastCorrectAt time.Time // zero until the first correct answer; leaderboard tie-break
}

// AnswerRecord is the single authoritative ledger entry for one participant's
// answer to one question. SelectedOption is empty for a timeout.
type AnswerRecord struct {
	ParticipantID  string    `json:"participantId"`
	QuestionIndex  int       `json:"questionIndex"`
	SelectedOption string    `json:"selectedOption"`
	IsCorrect      bool      `json:"isCorrect"`
	PointsAwarded  int       `json:"pointsAwarded"`
	TimeToAnswerMs int64     `json:"timeToAnswerMs"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// LeaderboardEntry is one ranked row. RankDelta is previous rank minus new
// rank, so a positive delta means the participant moved up.
type LeaderboardEntry struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Score         int    `json:"score"`
	Rank          int    `json:"rank"`
	RankDelta     int    `json:"rankDelta"`
}

// Leaderboard is the derived, ordered scoreboard for a session.
type Leaderboard struct {
	SessionID     string             `json:"sessionId"`
	QuestionIndex int                `json:"questionIndex"`
	Entries       []LeaderboardEntry `json:"entries"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// SubmitResult summarizes the outcome of an answer submission. A duplicate
// submission returns the originally recorded result with Accepted=false.
type SubmitResult struct {
	Accepted      bool `json:"accepted"`
	IsCorrect     bool `json:"isCorrect"`
	PointsAwarded int  `json:"pointsAwarded"`
	TotalScore    int  `json:"totalScore"`
}

// QuestionView is a question as shown to participants, without the answer.
type QuestionView struct {
	Index   int      `json:"index"`
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// SessionSnapshot is the pull-based recovery view for reconnecting clients.
// It carries everything the broadcast stream would have told them.
type SessionSnapshot struct {
	SessionID       string        `json:"sessionId"`
	QuizID          string        `json:"quizId"`
	State           SessionState  `json:"state"`
	Phase           QuestionPhase `json:"phase,omitempty"`
	CurrentQuestion *QuestionView `json:"currentQuestion,omitempty"`
	RemainingMs     int64         `json:"remainingMs"`
	Leaderboard     Leaderboard   `json:"leaderboard"`
}
