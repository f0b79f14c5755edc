package main

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const maxSessions = 100

// SessionIdleTimeout is how long an empty session survives before it is
// reaped. Tests shorten it.
var SessionIdleTimeout = 5 * time.Minute

// Session represents a game session that players can join
type Session struct {
	ID        string
	Name      string
	Game      *Game
	CreatedAt time.Time

	lastActive time.Time
}

// SessionManager handles creation and lookup of sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	deps     GameDeps
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(deps GameDeps) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		deps:     deps,
	}
}

// CreateSession creates a new game session. Returns nil if limit reached.
func (sm *SessionManager) CreateSession(name string) *Session {
	sm.mu.Lock()
	if len(sm.sessions) >= maxSessions {
		sm.mu.Unlock()
		log.Warn().Int("limit", maxSessions).Msg("session limit reached")
		return nil
	}

	id := GenerateUUID()
	now := time.Now()
	sess := &Session{
		ID:         id,
		Name:       name,
		Game:       NewGame(id, sm.deps),
		CreatedAt:  now,
		lastActive: now,
	}
	sm.sessions[id] = sess
	count := len(sm.sessions)
	sm.mu.Unlock()

	go sess.Game.Run()
	sm.deps.Analytics.Track(EvtSessionStart, 0, id, map[string]string{"name": name})
	sm.deps.Analytics.SetActiveSessions(count)
	log.Info().Str("session", id).Str("name", name).Msg("session created")
	return sess
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// MarkActive refreshes the session's idle clock and schedules a reap check.
func (sm *SessionManager) MarkActive(id string) {
	sm.mu.Lock()
	sess, ok := sm.sessions[id]
	if ok {
		sess.lastActive = time.Now()
	}
	sm.mu.Unlock()
	if !ok {
		return
	}
	timeout := SessionIdleTimeout
	time.AfterFunc(timeout, func() { sm.reapIfIdle(id, timeout) })
}

// reapIfIdle removes the session when nobody is seated and it has been idle
// for at least timeout.
func (sm *SessionManager) reapIfIdle(id string, timeout time.Duration) {
	sm.mu.Lock()
	sess, ok := sm.sessions[id]
	if !ok || sess.Game.PlayerCount() > 0 || time.Since(sess.lastActive) < timeout {
		sm.mu.Unlock()
		return
	}
	delete(sm.sessions, id)
	count := len(sm.sessions)
	sm.mu.Unlock()

	sess.Game.Stop()
	sm.deps.Analytics.Track(EvtSessionEnd, 0, id, nil)
	sm.deps.Analytics.SetActiveSessions(count)
	log.Info().Str("session", id).Msg("idle session reaped")
}

// RemovePlayer removes a player from a session. The session itself lingers
// for SessionIdleTimeout so the pilot can come back.
func (sm *SessionManager) RemovePlayer(sessionID, playerID string) {
	sess := sm.GetSession(sessionID)
	if sess == nil {
		return
	}
	sess.Game.RemovePlayer(playerID)
	sm.MarkActive(sessionID)
}

// ListSessions returns info about all active sessions, newest first.
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		sessions = append(sessions, sess)
	}
	sm.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	list := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		list = append(list, SessionInfo{
			ID:         sess.ID,
			Name:       sess.Name,
			Players:    sess.Game.PlayerCount(),
			Controller: sess.Game.HasController(),
		})
	}
	return list
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// StopAll stops every session, recording unfinished runs.
func (sm *SessionManager) StopAll() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()

	for _, sess := range sessions {
		if p := sess.Game.pilotID(); p != "" {
			sess.Game.RemovePlayer(p)
		}
		sess.Game.Stop()
	}
}
