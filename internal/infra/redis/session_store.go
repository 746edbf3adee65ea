package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"livequiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Live session objects (and their locks) stay in the local map; Redis
//     never owns game state.
//   - Redis carries a liveness marker per session and mirrors the score
//     board as a sorted set, so operators and sibling instances can inspect
//     standings without reaching into this process.
//   - Mirroring is best effort: a Redis outage degrades observability, not
//     scoring.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.liveKey(session.ID()), "1", s.ttl).Err()
}

func (s *SessionStore) Get(id string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.liveKey(id), s.scoresKey(id)).Err()
}

// IncrementScore implements app.ScoreMirror.
func (s *SessionStore) IncrementScore(ctx context.Context, sessionID, participantID string, delta int) error {
	pipe := s.client.Pipeline()
	pipe.ZIncrBy(ctx, s.scoresKey(sessionID), float64(delta), participantID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.scoresKey(sessionID), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ClearScores implements app.ScoreMirror; called when a session completes.
func (s *SessionStore) ClearScores(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.liveKey(sessionID), s.scoresKey(sessionID)).Err()
}

func (s *SessionStore) liveKey(sessionID string) string {
	return "livequiz:session:" + sessionID + ":live"
}

func (s *SessionStore) scoresKey(sessionID string) string {
	return "livequiz:session:" + sessionID + ":scores"
}
