package session

import (
	"context"
	"errors"
	"sync"

	"overlay-builder/core"

	"github.com/sirupsen/logrus"
)

// Manager keeps one Session per open project.
type Manager struct {
	store    core.ProjectStore
	cfg      Config
	notifier Notifier

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns a manager persisting through store. notifier may be nil.
func NewManager(store core.ProjectStore, cfg Config, notifier Notifier) *Manager {
	return &Manager{
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		sessions: make(map[string]*Session),
	}
}

func sessionKey(userID, projectID string) string {
	return userID + "/" + projectID
}

// Open returns the live session for the project, hydrating it from the
// store on first use.
func (m *Manager) Open(ctx context.Context, userID, projectID string) (*Session, error) {
	key := sessionKey(userID, projectID)

	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	project, err := m.store.Get(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s, nil
	}
	project.UserID = userID
	s := newSession(project, m.store, m.cfg, m.notifier)
	m.sessions[key] = s
	logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": projectID}).Debug("Session opened")
	return s, nil
}

// Lookup returns the open session for the project, if any.
func (m *Manager) Lookup(userID, projectID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey(userID, projectID)]
	return s, ok
}

// Discard closes the project's session without saving, as when the project
// is deleted.
func (m *Manager) Discard(userID, projectID string) {
	key := sessionKey(userID, projectID)
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

func (m *Manager) all() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	return list
}

// FlushAll saves every session with pending edits.
func (m *Manager) FlushAll(ctx context.Context) error {
	var errs []error
	for _, s := range m.all() {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes and closes every session.
func (m *Manager) Shutdown(ctx context.Context) error {
	err := m.FlushAll(ctx)
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	logrus.WithField("sessions", len(sessions)).Info("Sessions closed")
	return err
}
