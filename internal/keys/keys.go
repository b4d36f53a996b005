// Package keys stores provider API keys in the OS keyring. When no keyring
// is available the key is written to a private keys.json instead.
package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "polychat"

var ErrKeyNotFound = errors.New("no key stored")

// Store tracks which providers have keys. The index lives in keys.json; the
// secret itself lives in the keyring unless the entry says otherwise.
type Store struct {
	configDir  string
	useKeyring bool
}

// KeyEntry is one provider's record in keys.json.
type KeyEntry struct {
	Key     string `json:"key,omitempty"`
	Keyring bool   `json:"keyring,omitempty"`
}

type Keys map[string]KeyEntry

type Option func(*Store)

// WithDir places keys.json in dir instead of the user config directory.
func WithDir(dir string) Option {
	return func(s *Store) { s.configDir = dir }
}

// WithoutKeyring stores keys only in keys.json.
func WithoutKeyring() Option {
	return func(s *Store) { s.useKeyring = false }
}

func NewStore(opts ...Option) (*Store, error) {
	s := &Store{useKeyring: true}
	for _, opt := range opts {
		opt(s)
	}
	if s.configDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		s.configDir = dir
	}
	return s, nil
}

// ConfigDir is the per-user directory holding polychat's key index.
// POLYCHAT_CONFIG_DIR overrides it.
func ConfigDir() (string, error) {
	if dir := os.Getenv("POLYCHAT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "polychat"), nil
}

func (s *Store) Path() string {
	return filepath.Join(s.configDir, "keys.json")
}

func (s *Store) load() (Keys, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(Keys), nil
		}
		return nil, err
	}

	var keys Keys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse keys.json: %w", err)
	}
	if keys == nil {
		keys = make(Keys)
	}
	return keys, nil
}

func (s *Store) save(keys Keys) error {
	if err := os.MkdirAll(s.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	// Owner read/write only; the file may hold plaintext keys.
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write keys.json: %w", err)
	}
	return nil
}

// Set stores key for provider and reports where it went ("keyring" or
// "file").
func (s *Store) Set(provider, key string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "", errors.New("provider is required")
	}
	if key == "" {
		return "", errors.New("API key is empty")
	}

	keys, err := s.load()
	if err != nil {
		return "", err
	}

	if s.useKeyring {
		if err := keyring.Set(serviceName, provider, key); err == nil {
			keys[provider] = KeyEntry{Keyring: true}
			return "keyring", s.save(keys)
		}
	}
	keys[provider] = KeyEntry{Key: key}
	return "file", s.save(keys)
}

// Get returns the stored key for provider, or "" when none is stored.
func (s *Store) Get(provider string) (string, error) {
	keys, err := s.load()
	if err != nil {
		return "", err
	}
	entry, ok := keys[provider]
	if !ok {
		return "", nil
	}
	if !entry.Keyring {
		return entry.Key, nil
	}

	key, err := keyring.Get(serviceName, provider)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read keyring: %w", err)
	}
	return key, nil
}

func (s *Store) Delete(provider string) error {
	keys, err := s.load()
	if err != nil {
		return err
	}
	entry, ok := keys[provider]
	if !ok {
		return fmt.Errorf("%w for %s", ErrKeyNotFound, provider)
	}
	if entry.Keyring {
		if err := keyring.Delete(serviceName, provider); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("delete from keyring: %w", err)
		}
	}
	delete(keys, provider)
	return s.save(keys)
}

// List returns the providers with a stored key, sorted.
func (s *Store) List() ([]string, error) {
	keys, err := s.load()
	if err != nil {
		return nil, err
	}
	providers := make([]string, 0, len(keys))
	for p := range keys {
		providers = append(providers, p)
	}
	slices.Sort(providers)
	return providers, nil
}

// Lookup picks the key for provider from the flag value, then the
// environment value, then the store. It also reports where the key came
// from.
func (s *Store) Lookup(provider, flagValue, envValue, envVar string) (key, source string, err error) {
	if flagValue != "" {
		return flagValue, "command-line flag", nil
	}
	if envValue != "" {
		return envValue, fmt.Sprintf("environment variable (%s)", envVar), nil
	}
	stored, err := s.Get(provider)
	if err != nil {
		return "", "", err
	}
	if stored != "" {
		return stored, "stored key", nil
	}
	return "", "", fmt.Errorf("%w: run 'polychat keys set %s' or set %s", ErrKeyNotFound, provider, envVar)
}

// MaskKey returns a masked version of the key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
