package provider

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/manash/polychat/pkg/models"
)

// Router implements Gateway by dispatching each call to the backend that
// serves the model's provider. Capability checks happen here, before any
// backend sees the request.
type Router struct {
	backends map[models.ProviderType]Backend
	logger   *slog.Logger
}

var _ Gateway = (*Router)(nil)

func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		backends: make(map[models.ProviderType]Backend),
		logger:   logger,
	}
}

func (r *Router) Register(b Backend) {
	r.backends[b.Name()] = b
}

func (r *Router) Get(p models.ProviderType) (Backend, error) {
	b, ok := r.backends[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, p)
	}
	return b, nil
}

func (r *Router) forModel(m *models.Model, c models.Capability) (Backend, error) {
	if err := RequireCapability(m, c); err != nil {
		return nil, err
	}
	b, err := r.Get(m.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w (required by model %s)", err, m.ID)
	}
	return b, nil
}

func (r *Router) ListProviders() []models.ProviderType {
	out := make([]models.ProviderType, 0, len(r.backends))
	for p := range r.backends {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func (r *Router) GenerateText(ctx context.Context, prompt string, m *models.Model, cfg models.GenerationConfig) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, models.ErrEmptyPrompt)
	}
	b, err := r.forModel(m, models.CapabilityChat)
	if err != nil {
		return "", err
	}
	r.logger.Debug("generate text", "model", m.ID, "provider", m.Provider, "backend", m.BackendName)
	return b.GenerateText(ctx, prompt, m, cfg)
}

func (r *Router) GenerateImage(ctx context.Context, prompt string, m *models.Model) (*models.InputMedia, error) {
	if prompt == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, models.ErrEmptyPrompt)
	}
	b, err := r.forModel(m, models.CapabilityImage)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("generate image", "model", m.ID, "provider", m.Provider)
	return b.GenerateImage(ctx, prompt, m)
}

func (r *Router) EditImage(ctx context.Context, prompt string, input *models.InputMedia, m *models.Model) (*models.InputMedia, error) {
	b, err := r.forModel(m, models.CapabilityImageEdit)
	if err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if prompt == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, models.ErrEmptyPrompt)
	}
	r.logger.Debug("edit image", "model", m.ID, "provider", m.Provider, "bytes", len(input.Data))
	return b.EditImage(ctx, prompt, input, m)
}

func (r *Router) GenerateVideo(ctx context.Context, prompt string, input *models.InputMedia, m *models.Model, onProgress ProgressFunc) (*models.VideoResource, error) {
	b, err := r.forModel(m, models.CapabilityVideo)
	if err != nil {
		return nil, err
	}
	if input != nil {
		if err := input.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if prompt == "" && input == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, models.ErrEmptyPrompt)
	}
	if onProgress == nil {
		onProgress = func(string) {}
	}
	r.logger.Debug("generate video", "model", m.ID, "provider", m.Provider, "seeded", input != nil)
	return b.GenerateVideo(ctx, prompt, input, m, onProgress)
}
