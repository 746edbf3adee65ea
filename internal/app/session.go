package app

import (
	"sync"
	"time"

	"livequiz-service/internal/domain"
)

type ledgerKey struct {
	participantID string
	questionIndex int
}

// Session is the single point of mutable shared state for one live quiz.
// All mutation happens under mu; the service holds mu across the whole
// validate-score-record-rank-publish path so concurrent submissions cannot
// interleave or publish stale snapshots.
type Session struct {
	id        string
	quizID    string
	hostID    string
	quiz      domain.Quiz
	timeLimit time.Duration
	now       func() time.Time

	mu            sync.Mutex
	state         domain.SessionState
	phase         domain.QuestionPhase
	current       int
	epoch         uint64 // bumped on every question activation and on completion
	questionStart time.Time
	startedAt     time.Time
	endedAt       time.Time
	timer         *time.Timer

	joinCounter  int
	participants map[string]*domain.Participant
	ledger       map[ledgerKey]domain.AnswerRecord
	final        *domain.Leaderboard // frozen at completion
}

// NewSession builds a session in the Created state over an already validated
// quiz. Exported for the infrastructure layers that seed sessions.
func NewSession(id, hostID string, quiz domain.Quiz, timeLimit time.Duration) *Session {
	return NewSessionWithClock(id, hostID, quiz, timeLimit, time.Now)
}

// NewSessionWithClock is test-only for deterministic timestamps.
func NewSessionWithClock(id, hostID string, quiz domain.Quiz, timeLimit time.Duration, now func() time.Time) *Session {
	return &Session{
		id:           id,
		quizID:       quiz.ID,
		hostID:       hostID,
		quiz:         quiz,
		timeLimit:    timeLimit,
		now:          now,
		state:        domain.StateCreated,
		participants: make(map[string]*domain.Participant),
		ledger:       make(map[ledgerKey]domain.AnswerRecord),
	}
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// HostID returns the creating host's identifier.
func (s *Session) HostID() string { return s.hostID }

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsEmpty reports whether the session has no participants.
func (s *Session) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants) == 0
}

// participantsLocked snapshots the participant set for rank computation.
func (s *Session) participantsLocked() []domain.Participant {
	out := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, *p)
	}
	return out
}

// currentQuestionLocked returns the active question; callers must have
// checked the session is live.
func (s *Session) currentQuestionLocked() domain.Question {
	return s.quiz.Questions[s.current]
}

// questionViewLocked is the answer-free view of the active question.
func (s *Session) questionViewLocked() domain.QuestionView {
	q := s.currentQuestionLocked()
	return domain.QuestionView{
		Index:   s.current,
		ID:      q.ID,
		Text:    q.Text,
		Options: q.Options,
	}
}
