package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manash/polychat/internal/kvstore"
	"github.com/manash/polychat/pkg/models"
)

const (
	sessionsKey = "sessions"
	activeKey   = "active_session"
)

var ErrCorruptPayload = errors.New("persisted sessions are unreadable")

// Store encodes one user's sessions and active-session marker as JSON
// values in the key-value store.
type Store struct {
	kv kvstore.Store
}

func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

// LoadSessions returns nil and no error when nothing was saved yet.
func (s *Store) LoadSessions(ctx context.Context, userID string) ([]*models.ChatSession, error) {
	data, err := s.kv.Get(ctx, kvstore.UserScope(userID), sessionsKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sessions []*models.ChatSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	for _, sess := range sessions {
		if sess == nil || sess.ID == "" {
			return nil, fmt.Errorf("%w: session without id", ErrCorruptPayload)
		}
	}
	return sessions, nil
}

func (s *Store) SaveSessions(ctx context.Context, userID string, sessions []*models.ChatSession) error {
	if sessions == nil {
		sessions = []*models.ChatSession{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}
	return s.kv.Put(ctx, kvstore.UserScope(userID), sessionsKey, data)
}

func (s *Store) LoadActiveID(ctx context.Context, userID string) (string, error) {
	data, err := s.kv.Get(ctx, kvstore.UserScope(userID), activeKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveActiveID clears the marker when id is empty.
func (s *Store) SaveActiveID(ctx context.Context, userID, id string) error {
	if id == "" {
		return s.kv.Delete(ctx, kvstore.UserScope(userID), activeKey)
	}
	return s.kv.Put(ctx, kvstore.UserScope(userID), activeKey, []byte(id))
}
