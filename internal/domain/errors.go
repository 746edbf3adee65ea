package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live session exists for an ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizInvalid indicates quiz content that cannot be run as a session.
	ErrQuizInvalid = errors.New("quiz invalid")
	// ErrInvalidSubmission indicates a malformed answer (unknown option,
	// negative elapsed time, out-of-range question index).
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrDuplicateSubmission indicates the participant already has a ledger
	// entry for the question.
	ErrDuplicateSubmission = errors.New("duplicate submission")
	// ErrStaleQuestion indicates a submission for a question the session has
	// already moved past.
	ErrStaleQuestion = errors.New("question no longer accepting answers")
	// ErrSessionNotLive indicates a submission outside the live window.
	ErrSessionNotLive = errors.New("session not live")
	// ErrSessionEnded indicates the session has completed; terminal.
	ErrSessionEnded = errors.New("session ended")
	// ErrSessionNotWaiting indicates a start on a session not open for join.
	ErrSessionNotWaiting = errors.New("session not in waiting state")
	// ErrNotHost indicates a lifecycle action from someone other than the
	// session's host.
	ErrNotHost = errors.New("only the host may perform this action")
)
