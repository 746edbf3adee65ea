package domain

// EventType identifies a broadcast event on a session channel.
type EventType string

const (
	EventParticipantJoined  EventType = "participantJoined"
	EventAnswerScored       EventType = "answerScored"
	EventLeaderboardUpdated EventType = "leaderboardUpdated"
	EventQuestionAdvanced   EventType = "questionAdvanced"
	EventSessionEnded       EventType = "sessionEnded"
)

// Event is the envelope published to session subscribers. Seq is a
// per-session monotonic sequence number assigned at publish time; subscribers
// can use it to detect gaps after a reconnect.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Seq       uint64    `json:"seq"`
	Payload   any       `json:"payload,omitempty"`
}

// ParticipantJoinedPayload announces a new lobby member.
type ParticipantJoinedPayload struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Count         int    `json:"count"`
}

// AnswerScoredPayload reports one scored submission.
type AnswerScoredPayload struct {
	ParticipantID string `json:"participantId"`
	QuestionIndex int    `json:"questionIndex"`
	IsCorrect     bool   `json:"isCorrect"`
	PointsAwarded int    `json:"pointsAwarded"`
}

// QuestionAdvancedPayload announces the newly active question.
type QuestionAdvancedPayload struct {
	Question    QuestionView `json:"question"`
	TimeLimitMs int64        `json:"timeLimitMs"`
}

// SessionEndedPayload carries the frozen final standings.
type SessionEndedPayload struct {
	Final Leaderboard `json:"final"`
}
