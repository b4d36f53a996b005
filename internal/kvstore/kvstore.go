// Package kvstore is the durable key-value boundary behind sessions and the
// user directory. Values are opaque bytes grouped by scope.
package kvstore

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrClosed   = errors.New("store is closed")
)

// AppScope holds application-wide keys such as the user directory.
const AppScope = "app"

type Store interface {
	Get(ctx context.Context, scope, key string) ([]byte, error)
	Put(ctx context.Context, scope, key string, value []byte) error
	Delete(ctx context.Context, scope, key string) error
	Keys(ctx context.Context, scope string) ([]string, error)
	Close() error
}

// UserScope returns the scope that isolates one user's keys.
func UserScope(userID string) string {
	return "user:" + strings.ToLower(strings.TrimSpace(userID))
}
