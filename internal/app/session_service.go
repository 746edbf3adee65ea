// Package app contains the live session use cases: the session state
// machine, submission validation, and the wiring between scoring, ranking,
// and broadcast.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/leaderboard"
	"livequiz-service/internal/scoring"
)

// SessionRepository abstracts how live sessions are stored (in-memory,
// Redis-mirrored, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(id string) (*Session, bool)
	Delete(id string)
}

// ScoreMirror is optionally implemented by a SessionRepository that reflects
// score changes into an external store. Mirroring is best effort and never
// blocks scoring.
type ScoreMirror interface {
	IncrementScore(ctx context.Context, sessionID, participantID string, delta int) error
	ClearScores(ctx context.Context, sessionID string) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Gateway is the broadcast transport for session events. It owns only the
// channels, never game state.
type Gateway interface {
	Publish(sessionID string, event domain.Event)
	Subscribe(sessionID string) (<-chan domain.Event, func())
	Close(sessionID string)
}

// SessionInfo is the creation response for a session.
type SessionInfo struct {
	SessionID     string              `json:"sessionId"`
	QuizID        string              `json:"quizId"`
	Title         string              `json:"title"`
	QuestionCount int                 `json:"questionCount"`
	TimeLimitMs   int64               `json:"timeLimitMs"`
	State         domain.SessionState `json:"state"`
}

const (
	quizLoadAttempts = 3
	quizLoadBackoff  = 100 * time.Millisecond
	// clockDriftTolerance flags clients whose self-reported elapsed time
	// disagrees wildly with the server clock.
	clockDriftTolerance = 2 * time.Second
)

// SessionService orchestrates live quiz sessions. One service instance
// handles many concurrent sessions; each session serializes on its own
// mutex, so a failure or stall in one session never affects another.
type SessionService struct {
	sessions     SessionRepository
	quizzes      QuizRepository
	engine       *scoring.Engine
	ranks        *leaderboard.Aggregator
	publisher    Gateway
	defaultLimit time.Duration
	log          zerolog.Logger
	newID        func() string
	now          func() time.Time
}

func NewSessionService(sessions SessionRepository, quizzes QuizRepository, engine *scoring.Engine, publisher Gateway, defaultLimit time.Duration, log zerolog.Logger) *SessionService {
	return &SessionService{
		sessions:     sessions,
		quizzes:      quizzes,
		engine:       engine,
		ranks:        leaderboard.NewAggregator(),
		publisher:    publisher,
		defaultLimit: defaultLimit,
		log:          log.With().Str("component", "session_service").Logger(),
		newID:        uuid.NewString,
		now:          time.Now,
	}
}

// CreateSession loads and validates the quiz, then registers a new session
// in the Created state owned by hostID.
func (s *SessionService) CreateSession(ctx context.Context, quizID, hostID string) (SessionInfo, error) {
	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return SessionInfo{}, err
	}
	if err := quiz.Validate(); err != nil {
		return SessionInfo{}, err
	}

	limit := s.defaultLimit
	if quiz.TimeLimitSec > 0 {
		limit = time.Duration(quiz.TimeLimitSec) * time.Second
	}

	session := NewSessionWithClock(s.newID(), hostID, quiz, limit, s.now)
	s.sessions.Put(session)
	s.log.Info().Str("session_id", session.id).Str("quiz_id", quizID).Str("host_id", hostID).Msg("session created")
	return SessionInfo{
		SessionID:     session.id,
		QuizID:        quiz.ID,
		Title:         quiz.Title,
		QuestionCount: len(quiz.Questions),
		TimeLimitMs:   limit.Milliseconds(),
		State:         domain.StateCreated,
	}, nil
}

// Info reports session metadata without consuming leaderboard delta state.
func (s *SessionService) Info(ctx context.Context, sessionID string) (SessionInfo, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	return SessionInfo{
		SessionID:     session.id,
		QuizID:        session.quiz.ID,
		Title:         session.quiz.Title,
		QuestionCount: len(session.quiz.Questions),
		TimeLimitMs:   session.timeLimit.Milliseconds(),
		State:         session.state,
	}, nil
}

// HostOf reports the host identifier of a session.
func (s *SessionService) HostOf(sessionID string) (string, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return "", err
	}
	return session.HostID(), nil
}

// OpenSession moves Created -> Waiting so participants may register.
// Opening an already waiting session is a no-op.
func (s *SessionService) OpenSession(ctx context.Context, sessionID, hostID string) error {
	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if err := s.hostCheckLocked(session, hostID); err != nil {
		return err
	}
	switch session.state {
	case domain.StateCreated:
		session.state = domain.StateWaiting
		s.log.Info().Str("session_id", sessionID).Msg("session open for join")
		return nil
	case domain.StateWaiting:
		return nil
	case domain.StateCompleted:
		return domain.ErrSessionEnded
	default:
		return domain.ErrSessionNotWaiting
	}
}

// Join registers a participant. Joining is allowed while Waiting and, for
// late joiners, while Live; a rejoin under the same ID refreshes the display
// name without resetting the score.
func (s *SessionService) Join(ctx context.Context, sessionID, participantID, displayName string) (domain.Leaderboard, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	switch session.state {
	case domain.StateCompleted:
		return domain.Leaderboard{}, domain.ErrSessionEnded
	case domain.StateCreated:
		return domain.Leaderboard{}, domain.ErrSessionNotWaiting
	}

	now := session.now()
	if participant, ok := session.participants[participantID]; ok {
		participant.DisplayName = displayName
		return s.ranks.Preview(session.id, session.current, session.participantsLocked(), now), nil
	}

	session.participants[participantID] = &domain.Participant{
		ID:          participantID,
		DisplayName: displayName,
		JoinOrder:   session.joinCounter,
		JoinedAt:    now,
	}
	session.joinCounter++

	s.publisher.Publish(session.id, domain.Event{
		Type: domain.EventParticipantJoined,
		Payload: domain.ParticipantJoinedPayload{
			ParticipantID: participantID,
			DisplayName:   displayName,
			Count:         len(session.participants),
		},
	})
	lb := s.ranks.Compute(session.id, session.current, session.participantsLocked(), now)
	s.publisher.Publish(session.id, domain.Event{Type: domain.EventLeaderboardUpdated, Payload: lb})
	return lb, nil
}

// Start moves Waiting -> Live and activates question zero. Starting an
// already live session is a no-op.
func (s *SessionService) Start(ctx context.Context, sessionID, hostID string) error {
	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if err := s.hostCheckLocked(session, hostID); err != nil {
		return err
	}
	switch session.state {
	case domain.StateLive:
		return nil
	case domain.StateCompleted:
		return domain.ErrSessionEnded
	case domain.StateCreated:
		return domain.ErrSessionNotWaiting
	}

	session.state = domain.StateLive
	session.startedAt = session.now()
	session.current = 0
	s.activateQuestionLocked(session)
	s.log.Info().Str("session_id", sessionID).Int("participants", len(session.participants)).Msg("session live")
	return nil
}

// SubmitAnswer validates, scores, and records one answer, then republishes
// the leaderboard. Client-reported elapsed time is advisory only: the score
// always uses the server-recorded question start. A duplicate submission is
// a no-op that returns the originally recorded result with Accepted=false.
func (s *SessionService) SubmitAnswer(ctx context.Context, sessionID, participantID string, questionIndex int, selectedOption string, clientElapsedMs int64) (domain.SubmitResult, domain.Leaderboard, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return domain.SubmitResult{}, domain.Leaderboard{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	switch session.state {
	case domain.StateCompleted:
		return domain.SubmitResult{}, domain.Leaderboard{}, domain.ErrSessionEnded
	case domain.StateLive:
	default:
		return domain.SubmitResult{}, domain.Leaderboard{}, domain.ErrSessionNotLive
	}

	participant, ok := session.participants[participantID]
	if !ok {
		return domain.SubmitResult{}, domain.Leaderboard{}, domain.ErrParticipantNotFound
	}

	if questionIndex < session.current {
		return domain.SubmitResult{}, domain.Leaderboard{}, domain.ErrStaleQuestion
	}
	if questionIndex > session.current {
		return domain.SubmitResult{}, domain.Leaderboard{}, fmt.Errorf("%w: question %d not yet active", domain.ErrInvalidSubmission, questionIndex)
	}
	if session.phase != domain.PhaseQuestionActive {
		return domain.SubmitResult{}, domain.Leaderboard{}, domain.ErrStaleQuestion
	}

	now := session.now()
	key := ledgerKey{participantID: participantID, questionIndex: questionIndex}
	if existing, dup := session.ledger[key]; dup {
		// First write wins; tolerate client retry-on-timeout by echoing the
		// recorded outcome instead of erroring.
		return domain.SubmitResult{
			Accepted:      false,
			IsCorrect:     existing.IsCorrect,
			PointsAwarded: existing.PointsAwarded,
			TotalScore:    participant.Score,
		}, s.ranks.Preview(session.id, session.current, session.participantsLocked(), now), nil
	}

	elapsed := now.Sub(session.questionStart)
	if clientElapsedMs >= 0 {
		drift := elapsed - time.Duration(clientElapsedMs)*time.Millisecond
		if drift > clockDriftTolerance || drift < -clockDriftTolerance {
			s.log.Debug().Str("session_id", sessionID).Str("participant_id", participantID).
				Int64("client_elapsed_ms", clientElapsedMs).Int64("server_elapsed_ms", elapsed.Milliseconds()).
				Msg("client clock drift on submission")
		}
	}

	result, err := s.engine.Score(session.currentQuestionLocked(), selectedOption, elapsed, session.timeLimit)
	if err != nil {
		return domain.SubmitResult{}, domain.Leaderboard{}, err
	}

	record := domain.AnswerRecord{
		ParticipantID:  participantID,
		QuestionIndex:  questionIndex,
		SelectedOption: selectedOption,
		IsCorrect:      result.IsCorrect,
		PointsAwarded:  result.PointsAwarded,
		TimeToAnswerMs: elapsed.Milliseconds(),
		SubmittedAt:    now,
	}
	if result.TimedOut {
		record.SelectedOption = ""
	}
	session.ledger[key] = record

	if result.IsCorrect {
		participant.Score += result.PointsAwarded
		participant.LastCorrectAt = now
		if mirror, ok := s.sessions.(ScoreMirror); ok {
			// Fire-and-forget: the mirror must never hold up scoring, and the
			// request context may be gone by the time the write lands.
			go func(points int) {
				if err := mirror.IncrementScore(context.Background(), sessionID, participantID, points); err != nil {
					s.log.Warn().Err(err).Str("session_id", sessionID).Msg("score mirror failed")
				}
			}(result.PointsAwarded)
		}
	}

	s.publisher.Publish(session.id, domain.Event{
		Type: domain.EventAnswerScored,
		Payload: domain.AnswerScoredPayload{
			ParticipantID: participantID,
			QuestionIndex: questionIndex,
			IsCorrect:     result.IsCorrect,
			PointsAwarded: result.PointsAwarded,
		},
	})
	lb := s.ranks.Compute(session.id, session.current, session.participantsLocked(), now)
	s.publisher.Publish(session.id, domain.Event{Type: domain.EventLeaderboardUpdated, Payload: lb})

	return domain.SubmitResult{
		Accepted:      true,
		IsCorrect:     result.IsCorrect,
		PointsAwarded: result.PointsAwarded,
		TotalScore:    participant.Score,
	}, lb, nil
}

// AdvanceQuestion ends the active question (if still open) and moves to the
// next one, or completes the session after the last question. Advancement is
// host-driven; the countdown only closes the question, it never advances.
func (s *SessionService) AdvanceQuestion(ctx context.Context, sessionID, hostID string) error {
	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if err := s.hostCheckLocked(session, hostID); err != nil {
		return err
	}
	switch session.state {
	case domain.StateCompleted:
		return domain.ErrSessionEnded
	case domain.StateLive:
	default:
		return domain.ErrSessionNotLive
	}

	if session.phase == domain.PhaseQuestionActive {
		s.endQuestionLocked(session)
	}
	if session.current == len(session.quiz.Questions)-1 {
		s.completeLocked(session)
		return nil
	}
	session.current++
	s.activateQuestionLocked(session)
	return nil
}

// EndSession is the host's hard stop: always allowed before completion,
// always terminal.
func (s *SessionService) EndSession(ctx context.Context, sessionID, hostID string) error {
	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if err := s.hostCheckLocked(session, hostID); err != nil {
		return err
	}
	if session.state == domain.StateCompleted {
		return domain.ErrSessionEnded
	}
	s.completeLocked(session)
	return nil
}

// Snapshot is the pull-based recovery view for clients that (re)connect and
// cannot rely on the broadcast stream.
func (s *SessionService) Snapshot(ctx context.Context, sessionID string) (domain.SessionSnapshot, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	snap := domain.SessionSnapshot{
		SessionID: session.id,
		QuizID:    session.quizID,
		State:     session.state,
	}
	if session.final != nil {
		snap.Leaderboard = *session.final
		return snap, nil
	}

	now := session.now()
	snap.Leaderboard = s.ranks.Preview(session.id, session.current, session.participantsLocked(), now)
	if session.state == domain.StateLive {
		snap.Phase = session.phase
		view := session.questionViewLocked()
		snap.CurrentQuestion = &view
		if session.phase == domain.PhaseQuestionActive {
			remaining := session.timeLimit - now.Sub(session.questionStart)
			if remaining < 0 {
				remaining = 0
			}
			snap.RemainingMs = remaining.Milliseconds()
		}
	}
	return snap, nil
}

// Subscribe returns the session's event stream. The caller must invoke the
// returned cancel function.
func (s *SessionService) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	if _, err := s.getSession(sessionID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.publisher.Subscribe(sessionID)
	return ch, cancel, nil
}

func (s *SessionService) getSession(sessionID string) (*Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionService) hostCheckLocked(session *Session, hostID string) error {
	if session.hostID != hostID {
		return domain.ErrNotHost
	}
	return nil
}

// activateQuestionLocked opens the current question: records its start
// timestamp, arms the countdown, and announces it. The epoch guard makes a
// late timer fire after a manual advance a no-op.
func (s *SessionService) activateQuestionLocked(session *Session) {
	session.phase = domain.PhaseQuestionActive
	session.questionStart = session.now()
	session.epoch++
	epoch := session.epoch

	if session.timer != nil {
		session.timer.Stop()
	}
	// The countdown runs to limit+grace: the UI counts down the limit, the
	// grace absorbs submissions already in flight when it hits zero.
	session.timer = time.AfterFunc(session.timeLimit+s.engine.Grace(), func() {
		s.questionDeadline(session, epoch)
	})

	s.publisher.Publish(session.id, domain.Event{
		Type: domain.EventQuestionAdvanced,
		Payload: domain.QuestionAdvancedPayload{
			Question:    session.questionViewLocked(),
			TimeLimitMs: session.timeLimit.Milliseconds(),
		},
	})
}

// questionDeadline is the countdown callback for one (session, epoch) pair.
func (s *SessionService) questionDeadline(session *Session, epoch uint64) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.state != domain.StateLive || session.epoch != epoch || session.phase != domain.PhaseQuestionActive {
		return
	}
	s.endQuestionLocked(session)
}

// endQuestionLocked closes the active question and writes timeout ledger
// entries for everyone who never answered, so the ledger holds exactly one
// record per (participant, question).
func (s *SessionService) endQuestionLocked(session *Session) {
	session.phase = domain.PhaseQuestionEnded
	if session.timer != nil {
		session.timer.Stop()
		session.timer = nil
	}

	now := session.now()
	timeouts := 0
	for id := range session.participants {
		key := ledgerKey{participantID: id, questionIndex: session.current}
		if _, answered := session.ledger[key]; answered {
			continue
		}
		session.ledger[key] = domain.AnswerRecord{
			ParticipantID:  id,
			QuestionIndex:  session.current,
			SelectedOption: "",
			IsCorrect:      false,
			PointsAwarded:  0,
			TimeToAnswerMs: session.timeLimit.Milliseconds(),
			SubmittedAt:    now,
		}
		timeouts++
	}

	lb := s.ranks.Compute(session.id, session.current, session.participantsLocked(), now)
	s.publisher.Publish(session.id, domain.Event{Type: domain.EventLeaderboardUpdated, Payload: lb})
	s.log.Info().Str("session_id", session.id).Int("question", session.current).Int("timeouts", timeouts).Msg("question closed")
}

// completeLocked is the single, irreversible exit into Completed.
func (s *SessionService) completeLocked(session *Session) {
	if session.timer != nil {
		session.timer.Stop()
		session.timer = nil
	}
	session.epoch++ // invalidates any countdown still in flight
	session.state = domain.StateCompleted
	session.phase = ""
	session.endedAt = session.now()

	final := s.ranks.Compute(session.id, session.current, session.participantsLocked(), session.endedAt)
	session.final = &final
	s.ranks.Forget(session.id)

	s.publisher.Publish(session.id, domain.Event{
		Type:    domain.EventSessionEnded,
		Payload: domain.SessionEndedPayload{Final: final},
	})
	s.publisher.Close(session.id)

	if mirror, ok := s.sessions.(ScoreMirror); ok {
		sessionID := session.id
		go func() {
			if err := mirror.ClearScores(context.Background(), sessionID); err != nil {
				s.log.Warn().Err(err).Str("session_id", sessionID).Msg("score mirror cleanup failed")
			}
		}()
	}
	s.log.Info().Str("session_id", session.id).Int("participants", len(session.participants)).Msg("session completed")
}

// loadQuiz retries transient loader failures with backoff. Reads are
// idempotent, so a blind retry is safe here; not-found and invalid content
// fail immediately.
func (s *SessionService) loadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var lastErr error
	backoff := quizLoadBackoff
	for attempt := 0; attempt < quizLoadAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.Quiz{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		quiz, err := s.quizzes.GetQuiz(ctx, quizID)
		if err == nil {
			return quiz, nil
		}
		if errors.Is(err, domain.ErrQuizNotFound) || errors.Is(err, domain.ErrQuizInvalid) {
			return domain.Quiz{}, err
		}
		lastErr = err
		s.log.Warn().Err(err).Str("quiz_id", quizID).Int("attempt", attempt+1).Msg("quiz load failed, retrying")
	}
	return domain.Quiz{}, fmt.Errorf("load quiz %s: %w", quizID, lastErr)
}
