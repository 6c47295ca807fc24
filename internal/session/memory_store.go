package session

import (
	"context"
	"sync"
	"time"

	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/phone"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) GetSession(_ context.Context, p string) (*Session, error) {
	key := phone.NormalizeE164(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[key]; ok {
		copied := *sess
		copied.Tags = append([]string(nil), sess.Tags...)
		return &copied, nil
	}
	return newSession(key), nil
}

func (m *MemoryStore) SaveSession(_ context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *sess
	copied.Phone = phone.NormalizeE164(sess.Phone)
	copied.Tags = append([]string(nil), sess.Tags...)
	m.sessions[copied.Phone] = &copied
	return nil
}

func (m *MemoryStore) SetLastFollowUpAt(ctx context.Context, p string, at time.Time) error {
	return m.update(ctx, p, func(s *Session) { s.LastFollowUpAt = at })
}

func (m *MemoryStore) TouchInteraction(ctx context.Context, p string, at time.Time) error {
	return m.update(ctx, p, func(s *Session) { s.LastInteraction = at })
}

func (m *MemoryStore) SetContactStatus(ctx context.Context, p string, status ContactStatus) error {
	return m.update(ctx, p, func(s *Session) { s.ContactStatus = status })
}

func (m *MemoryStore) AddTag(ctx context.Context, p, tag string) error {
	return m.update(ctx, p, func(s *Session) {
		if !s.HasTag(tag) {
			s.Tags = append(s.Tags, tag)
		}
	})
}

func (m *MemoryStore) update(_ context.Context, p string, fn func(*Session)) error {
	key := phone.NormalizeE164(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[key]
	if !ok {
		sess = newSession(key)
		m.sessions[key] = sess
	}
	fn(sess)
	return nil
}
