package redis

import (
	"context"
	"sync"
	"time"

	"chart-abtest-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Trials and result logs stay in process; sessions are never shared.
//   - Redis marks session liveness so operators can count open sessions
//     across instances (KEYS abtest:session:*).
//   - A session whose liveness key expired is dropped on the next access.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	newID    func() string
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		newID:    app.NewSessionID,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Create() *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	for _, taken := s.sessions[id]; taken; _, taken = s.sessions[id] {
		id = s.newID()
	}
	session := app.NewSession(id)
	s.sessions[id] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(id), session.CreatedAt().Unix(), s.ttl).Err()
	return session
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || s.ttl <= 0 {
		return session, ok
	}

	alive, err := s.client.Expire(context.Background(), s.key(sessionID), s.ttl).Result()
	if err != nil {
		// redis unreachable: keep serving from process memory
		return session, true
	}
	if !alive {
		s.mu.Lock()
		if s.sessions[sessionID] == session {
			delete(s.sessions, sessionID)
		}
		s.mu.Unlock()
		return nil, false
	}
	return session, true
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return
	}
	delete(s.sessions, sessionID)
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
}

func (s *SessionStore) DeleteIfIdle(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || !session.IsIdle() {
		return false
	}
	delete(s.sessions, sessionID)
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
	return true
}

func (s *SessionStore) key(sessionID string) string {
	return "abtest:session:" + sessionID
}
