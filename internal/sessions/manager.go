// Package sessions holds the per-user conversation logs used as completion
// context. State is process-memory only and bounded; nothing survives restart.
package sessions

import (
	"sync"
	"time"

	"github.com/fotoskupka/estimabot/internal/providers"
)

// Session is one user's ordered conversation. The first entry is always the
// system persona and is never removed.
type Session struct {
	UserID       string
	Messages     []providers.Message
	Created      time.Time
	LastActivity time.Time
}

// Limits bounds the in-memory session table.
type Limits struct {
	MaxHistory  int           // entries kept beyond the system entry (0 = unlimited)
	MaxSessions int           // tracked users cap
	IdleTTL     time.Duration // evict sessions inactive longer than this
}

// Manager owns all session state. Safe for concurrent use from both ingress
// paths; no network calls happen under its lock.
type Manager struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	systemPrompt string
	limits       Limits

	now func() time.Time // test hook
}

func NewManager(systemPrompt string, limits Limits) *Manager {
	return &Manager{
		sessions:     make(map[string]*Session),
		systemPrompt: systemPrompt,
		limits:       limits,
		now:          time.Now,
	}
}

// AppendUser appends a user entry built from text and/or an image and returns
// an immutable snapshot of the full conversation including that entry.
// The caller guarantees at least one part is present (empty-input policy).
func (m *Manager) AppendUser(userID, text string, image *providers.ImageContent) []providers.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getOrCreate(userID)

	entry := providers.Message{Role: "user", Content: text}
	if image != nil {
		entry.Images = []providers.ImageContent{*image}
	}
	s.Messages = append(s.Messages, entry)
	s.LastActivity = m.now()
	m.trim(s)

	return snapshot(s)
}

// AppendAssistant appends an assistant entry. Called only after a successful
// completion; on failure the user entry stays unanswered in history.
func (m *Manager) AppendAssistant(userID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return
	}
	s.Messages = append(s.Messages, providers.Message{Role: "assistant", Content: text})
	s.LastActivity = m.now()
	m.trim(s)
}

// History returns a copy of the conversation, or nil if the user has none.
func (m *Manager) History(userID string) []providers.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil
	}
	return snapshot(s)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// getOrCreate lazily initializes a session with the system entry.
// Caller holds m.mu.
func (m *Manager) getOrCreate(userID string) *Session {
	if s, ok := m.sessions[userID]; ok {
		return s
	}

	if m.limits.MaxSessions > 0 && len(m.sessions) >= m.limits.MaxSessions {
		m.evict()
	}

	now := m.now()
	s := &Session{
		UserID:       userID,
		Messages:     []providers.Message{{Role: "system", Content: m.systemPrompt}},
		Created:      now,
		LastActivity: now,
	}
	m.sessions[userID] = s
	return s
}

// trim keeps the system entry plus the most recent MaxHistory entries.
// Caller holds m.mu.
func (m *Manager) trim(s *Session) {
	if m.limits.MaxHistory <= 0 {
		return
	}
	if extra := len(s.Messages) - 1 - m.limits.MaxHistory; extra > 0 {
		kept := make([]providers.Message, 0, 1+m.limits.MaxHistory)
		kept = append(kept, s.Messages[0])
		kept = append(kept, s.Messages[1+extra:]...)
		s.Messages = kept
	}
}

// evict drops idle sessions; if none are idle, drops the least recently
// active one. Caller holds m.mu.
func (m *Manager) evict() {
	now := m.now()
	if m.limits.IdleTTL > 0 {
		for id, s := range m.sessions {
			if now.Sub(s.LastActivity) >= m.limits.IdleTTL {
				delete(m.sessions, id)
			}
		}
	}

	for m.limits.MaxSessions > 0 && len(m.sessions) >= m.limits.MaxSessions {
		var oldestID string
		var oldest time.Time
		for id, s := range m.sessions {
			if oldestID == "" || s.LastActivity.Before(oldest) {
				oldestID = id
				oldest = s.LastActivity
			}
		}
		delete(m.sessions, oldestID)
	}
}

func snapshot(s *Session) []providers.Message {
	msgs := make([]providers.Message, len(s.Messages))
	copy(msgs, s.Messages)
	return msgs
}
