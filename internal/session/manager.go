// Package session keeps the signed-in user's chat sessions in memory and
// writes every change through to the key-value store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manash/polychat/pkg/models"
)

var (
	ErrNoUser          = errors.New("no user loaded")
	ErrSessionNotFound = errors.New("session not found")
)

// PersistenceWarning is a failed write. It is logged and kept for display;
// in-memory state stays authoritative.
type PersistenceWarning struct {
	Op  string
	Err error
}

func (w *PersistenceWarning) Error() string {
	return fmt.Sprintf("could not persist %s: %v", w.Op, w.Err)
}

func (w *PersistenceWarning) Unwrap() error {
	return w.Err
}

type Manager struct {
	mu       sync.Mutex
	store    *Store
	logger   *slog.Logger
	now      func() time.Time
	userID   string
	sessions []*models.ChatSession
	activeID string
	lastWarn error
}

func NewManager(store *Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Load replaces in-memory state with userID's persisted sessions. An
// unreadable payload yields an empty list rather than an error.
func (m *Manager) Load(ctx context.Context, userID string) ([]*models.ChatSession, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.userID = userID
	m.sessions = nil
	m.activeID = ""

	sessions, err := m.store.LoadSessions(ctx, userID)
	if err != nil {
		m.warn("load sessions", err)
		return nil, ""
	}
	m.sessions = sessions

	activeID, err := m.store.LoadActiveID(ctx, userID)
	if err != nil {
		m.warn("load active session", err)
	}
	if m.find(activeID) != nil {
		m.activeID = activeID
	}

	m.logger.Debug("sessions loaded", "user", userID, "count", len(m.sessions), "active", m.activeID)
	return m.cloneAll(), m.activeID
}

// Unload drops in-memory state without touching what is persisted.
func (m *Manager) Unload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userID = ""
	m.sessions = nil
	m.activeID = ""
}

func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

func (m *Manager) Save(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveSessions(ctx)
}

func (m *Manager) SaveActiveID(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveActive(ctx)
}

// CreateSession starts a session holding first, puts it at the head of the
// list and makes it active.
func (m *Manager) CreateSession(ctx context.Context, first models.Message) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.userID == "" {
		return nil, ErrNoUser
	}

	now := m.now()
	sess := &models.ChatSession{
		ID:        uuid.New().String(),
		Title:     models.DeriveTitle(first.Content),
		Messages:  []models.Message{first},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions = append([]*models.ChatSession{sess}, m.sessions...)
	m.activeID = sess.ID

	m.saveSessions(ctx)
	m.saveActive(ctx)
	return sess.Clone(), nil
}

// AppendMessages merges msgs into the current copy of the session, skipping
// ids it already holds.
func (m *Manager) AppendMessages(ctx context.Context, sessionID string, msgs ...models.Message) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.find(sessionID)
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	added := 0
	for _, msg := range msgs {
		if sess.HasMessage(msg.ID) {
			continue
		}
		sess.Messages = append(sess.Messages, msg)
		added++
	}
	if added > 0 {
		sess.UpdatedAt = m.now()
		m.saveSessions(ctx)
	}
	return sess.Clone(), nil
}

// SetActive marks id as the active session. An empty id clears it.
func (m *Manager) SetActive(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" && m.find(id) == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if m.activeID == id {
		return nil
	}
	m.activeID = id
	m.saveActive(ctx)
	return nil
}

func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Active returns a copy of the active session, or nil.
func (m *Manager) Active() *models.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.find(m.activeID); s != nil {
		return s.Clone()
	}
	return nil
}

func (m *Manager) Session(id string) (*models.ChatSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.find(id); s != nil {
		return s.Clone(), true
	}
	return nil, false
}

// Sessions returns copies, most recently created first.
func (m *Manager) Sessions() []*models.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cloneAll()
}

func (m *Manager) Rename(ctx context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.find(id)
	if sess == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if title == "" {
		title = models.DefaultTitle
	}
	sess.Title = title
	sess.UpdatedAt = m.now()
	m.saveSessions(ctx)
	return nil
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.sessions {
		if s.ID != id {
			continue
		}
		m.sessions = append(m.sessions[:i:i], m.sessions[i+1:]...)
		m.saveSessions(ctx)
		if m.activeID == id {
			m.activeID = ""
			m.saveActive(ctx)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// LastWarning returns the most recent persistence failure, if any.
func (m *Manager) LastWarning() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastWarn
}

func (m *Manager) find(id string) *models.ChatSession {
	if id == "" {
		return nil
	}
	for _, s := range m.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (m *Manager) cloneAll() []*models.ChatSession {
	out := make([]*models.ChatSession, len(m.sessions))
	for i, s := range m.sessions {
		out[i] = s.Clone()
	}
	return out
}

// Writes outlive the caller's context: a change already applied in memory is
// persisted even when the dispatch that produced it was cancelled.
func (m *Manager) saveSessions(ctx context.Context) {
	if m.userID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	m.withRetry("sessions", func() error {
		return m.store.SaveSessions(ctx, m.userID, m.sessions)
	})
}

func (m *Manager) saveActive(ctx context.Context) {
	if m.userID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	m.withRetry("active session", func() error {
		return m.store.SaveActiveID(ctx, m.userID, m.activeID)
	})
}

// withRetry makes one extra attempt before giving up with a warning.
func (m *Manager) withRetry(op string, write func() error) {
	err := write()
	if err == nil {
		return
	}
	if err = write(); err == nil {
		return
	}
	m.warn(op, err)
}

func (m *Manager) warn(op string, err error) {
	w := &PersistenceWarning{Op: op, Err: err}
	m.lastWarn = w
	m.logger.Warn("persistence warning", "op", op, "user", m.userID, "err", err)
}
