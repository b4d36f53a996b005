// Package auth keeps the local user directory and remembers who is signed in.
// Credentials are bcrypt hashes in the app scope of the key-value store.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/manash/polychat/internal/kvstore"
)

const (
	usersKey       = "users"
	currentUserKey = "current_user"
)

var (
	ErrEmptyCredentials = errors.New("username and password cannot be empty")
	ErrUserExists       = errors.New("username already taken")
	ErrUserNotFound     = errors.New("user not found")
	ErrWrongPassword    = errors.New("incorrect password")
)

type User struct {
	Username     string `json:"username"`
	PasswordHash []byte `json:"password_hash"`
}

type Directory struct {
	mu   sync.Mutex
	kv   kvstore.Store
	cost int
}

type Option func(*Directory)

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(d *Directory) { d.cost = cost }
}

func NewDirectory(kv kvstore.Store, opts ...Option) *Directory {
	d := &Directory{kv: kv, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SignUp registers username and signs them in. Usernames compare
// case-insensitively but keep the spelling given at sign-up.
func (d *Directory) SignUp(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return "", ErrEmptyCredentials
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	users, err := d.load(ctx)
	if err != nil {
		return "", err
	}
	if find(users, username) != nil {
		return "", fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	users = append(users, User{Username: username, PasswordHash: hash})
	if err := d.save(ctx, users); err != nil {
		return "", err
	}
	return username, d.setCurrent(ctx, username)
}

// Login checks the password and records username as the current user. It
// returns the username as stored.
func (d *Directory) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return "", ErrEmptyCredentials
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	users, err := d.load(ctx)
	if err != nil {
		return "", err
	}
	u := find(users, username)
	if u == nil {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return "", ErrWrongPassword
	}
	return u.Username, d.setCurrent(ctx, u.Username)
}

func (d *Directory) Logout(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.kv.Delete(ctx, kvstore.AppScope, currentUserKey)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return err
	}
	return nil
}

// Current returns the signed-in username, or "" when nobody is.
func (d *Directory) Current(ctx context.Context) (string, error) {
	raw, err := d.kv.Get(ctx, kvstore.AppScope, currentUserKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (d *Directory) Usernames(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	users, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Username
	}
	return names, nil
}

func (d *Directory) load(ctx context.Context) ([]User, error) {
	raw, err := d.kv.Get(ctx, kvstore.AppScope, usersKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var users []User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("user directory is unreadable: %w", err)
	}
	return users, nil
}

func (d *Directory) save(ctx context.Context, users []User) error {
	raw, err := json.Marshal(users)
	if err != nil {
		return err
	}
	return d.kv.Put(ctx, kvstore.AppScope, usersKey, raw)
}

func (d *Directory) setCurrent(ctx context.Context, username string) error {
	return d.kv.Put(ctx, kvstore.AppScope, currentUserKey, []byte(username))
}

func find(users []User, username string) *User {
	for i := range users {
		if strings.EqualFold(users[i].Username, username) {
			return &users[i]
		}
	}
	return nil
}
