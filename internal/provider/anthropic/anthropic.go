// Package anthropic serves Claude chat models through eino. Claude has no
// image or video generation, so those calls report ErrUnsupportedModel.
package anthropic

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino-ext/components/model/claude"

	"github.com/manash/polychat/internal/provider"
	"github.com/manash/polychat/pkg/models"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 2048
)

type Provider struct {
	chat   provider.ChatGenerator
	logger *slog.Logger
}

var _ provider.Backend = (*Provider)(nil)

func New(ctx context.Context, cfg *provider.Config, logger *slog.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	cc := &claude.Config{
		APIKey:    cfg.APIKey,
		Model:     defaultModel,
		MaxTokens: defaultMaxTokens,
	}
	if cfg.BaseURL != "" {
		cc.BaseURL = &cfg.BaseURL
	}

	chat, err := claude.NewChatModel(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create claude model: %w", err)
	}
	return newProvider(chat, logger), nil
}

func newProvider(chat provider.ChatGenerator, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{chat: chat, logger: logger.With("provider", models.ProviderAnthropic)}
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderAnthropic
}

func (p *Provider) GenerateText(ctx context.Context, prompt string, m *models.Model, cfg models.GenerationConfig) (string, error) {
	p.logger.Debug("generate text", "model", m.BackendFor(models.CapabilityChat))
	return provider.GenerateChat(ctx, p.chat, models.ProviderAnthropic, m, prompt, cfg)
}

func (p *Provider) GenerateImage(_ context.Context, _ string, m *models.Model) (*models.InputMedia, error) {
	return nil, unsupported(m, models.CapabilityImage)
}

func (p *Provider) EditImage(_ context.Context, _ string, _ *models.InputMedia, m *models.Model) (*models.InputMedia, error) {
	return nil, unsupported(m, models.CapabilityImageEdit)
}

func (p *Provider) GenerateVideo(_ context.Context, _ string, _ *models.InputMedia, m *models.Model, _ provider.ProgressFunc) (*models.VideoResource, error) {
	return nil, unsupported(m, models.CapabilityVideo)
}

func unsupported(m *models.Model, c models.Capability) error {
	return fmt.Errorf("%w: anthropic cannot serve %s for %s", provider.ErrUnsupportedModel, c, m.ID)
}
