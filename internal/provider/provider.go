package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/manash/polychat/pkg/models"
)

var (
	ErrBackend          = errors.New("backend error")
	ErrUnsupportedModel = errors.New("model does not support this operation")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTimeout          = errors.New("generation timed out")
	ErrProviderNotFound = errors.New("provider not configured")
	ErrAPIKeyRequired   = errors.New("API key is required")
)

// BackendError is a failed remote call. It matches ErrBackend with errors.Is.
type BackendError struct {
	Provider models.ProviderType
	Cause    string
	Err      error
}

func (e *BackendError) Error() string {
	if e.Cause == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Cause)
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func NewBackendError(p models.ProviderType, err error) *BackendError {
	return &BackendError{Provider: p, Cause: err.Error(), Err: err}
}

func BackendErrorf(p models.ProviderType, format string, args ...any) *BackendError {
	return &BackendError{Provider: p, Cause: fmt.Sprintf(format, args...)}
}

// ProgressFunc receives human-readable status updates from long-running
// generations.
type ProgressFunc func(status string)

// Gateway is the boundary to a model backend. Calls never retry internally.
type Gateway interface {
	GenerateText(ctx context.Context, prompt string, model *models.Model, cfg models.GenerationConfig) (string, error)
	GenerateImage(ctx context.Context, prompt string, model *models.Model) (*models.InputMedia, error)
	EditImage(ctx context.Context, prompt string, input *models.InputMedia, model *models.Model) (*models.InputMedia, error)
	GenerateVideo(ctx context.Context, prompt string, input *models.InputMedia, model *models.Model, onProgress ProgressFunc) (*models.VideoResource, error)
}

// Backend is a Gateway bound to one provider.
type Backend interface {
	Gateway
	Name() models.ProviderType
}

type Config struct {
	APIKey     string
	BaseURL    string
	TimeoutSec int
	Verbose    bool
}

func (c *Config) Timeout(fallback time.Duration) time.Duration {
	if c == nil || c.TimeoutSec <= 0 {
		return fallback
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// RequireCapability reports ErrUnsupportedModel when m lacks c.
func RequireCapability(m *models.Model, c models.Capability) error {
	if m == nil {
		return fmt.Errorf("%w: no model selected", ErrUnsupportedModel)
	}
	if !m.Has(c) || m.BackendFor(c) == "" {
		return fmt.Errorf("%w: %s cannot %s", ErrUnsupportedModel, m.Name, c)
	}
	return nil
}

// Describe turns a gateway error into the short text shown to users.
func Describe(err error) string {
	var be *BackendError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &be):
		return be.Cause
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return "The request timed out. Please try again."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	}
	return err.Error()
}
