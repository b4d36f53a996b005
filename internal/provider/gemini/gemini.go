// Package gemini serves text, image and video generation through the Google
// Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/manash/polychat/internal/provider"
	"github.com/manash/polychat/internal/security"
	"github.com/manash/polychat/pkg/models"
)

const defaultTimeout = 120 * time.Second

// modelsAPI is the subset of genai.Models used here.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

// operationsAPI is the subset of genai.Operations used to poll video jobs.
type operationsAPI interface {
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

type Provider struct {
	apiKey     string
	models     modelsAPI
	operations operationsAPI
	httpClient *http.Client
	// downloadPolicy guards the keyed video download; nil skips the check.
	downloadPolicy *security.URLPolicy
	pollInterval   time.Duration
	maxPolls       int
	logger         *slog.Logger
}

var _ provider.Backend = (*Provider)(nil)

func New(ctx context.Context, cfg *provider.Config, logger *slog.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	p := newProvider(cfg.APIKey, client.Models, client.Operations, logger)
	p.httpClient.Timeout = cfg.Timeout(defaultTimeout)
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Hostname() != "" {
		p.downloadPolicy = googleDownloadPolicy(u.Hostname())
	}
	return p, nil
}

func newProvider(apiKey string, m modelsAPI, ops operationsAPI, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		apiKey:         apiKey,
		models:         m,
		operations:     ops,
		httpClient:     &http.Client{Timeout: defaultTimeout},
		downloadPolicy: googleDownloadPolicy(),
		pollInterval:   defaultPollInterval,
		maxPolls:       maxPollAttempts,
		logger:         logger.With("provider", models.ProviderGemini),
	}
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderGemini
}

func (p *Provider) GenerateText(ctx context.Context, prompt string, m *models.Model, cfg models.GenerationConfig) (string, error) {
	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(cfg.Temperature)),
		TopP:            genai.Ptr(float32(cfg.TopP)),
		TopK:            genai.Ptr(float32(cfg.TopK)),
		MaxOutputTokens: int32(cfg.MaxOutputTokens),
	}
	if m.SystemInstruction != "" {
		gc.SystemInstruction = genai.NewContentFromText(m.SystemInstruction, genai.RoleUser)
	}

	backend := m.BackendFor(models.CapabilityChat)
	p.logger.Debug("generate content", "model", backend, "prompt_len", len(prompt))

	resp, err := p.models.GenerateContent(ctx, backend, genai.Text(prompt), gc)
	if err != nil {
		return "", wrapErr(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", provider.BackendErrorf(models.ProviderGemini, "%s returned an empty response", backend)
	}
	return text, nil
}

func (p *Provider) GenerateImage(ctx context.Context, prompt string, m *models.Model) (*models.InputMedia, error) {
	backend := m.BackendFor(models.CapabilityImage)
	p.logger.Debug("generate images", "model", backend)

	// Image-capable Gemini chat models answer through GenerateContent rather
	// than the Imagen endpoint.
	if strings.HasPrefix(backend, "gemini-") {
		resp, err := p.models.GenerateContent(ctx, backend, genai.Text(prompt), nil)
		if err != nil {
			return nil, wrapErr(err)
		}
		return firstInlineImage(resp, backend)
	}

	resp, err := p.models.GenerateImages(ctx, backend, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		reason := "no image returned"
		if len(resp.GeneratedImages) > 0 && resp.GeneratedImages[0].RAIFilteredReason != "" {
			reason = resp.GeneratedImages[0].RAIFilteredReason
		}
		return nil, provider.BackendErrorf(models.ProviderGemini, "%s", reason)
	}

	img := resp.GeneratedImages[0].Image
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return &models.InputMedia{Data: img.ImageBytes, MIMEType: mime}, nil
}

func (p *Provider) EditImage(ctx context.Context, prompt string, input *models.InputMedia, m *models.Model) (*models.InputMedia, error) {
	backend := m.BackendFor(models.CapabilityImageEdit)
	p.logger.Debug("edit image", "model", backend, "bytes", len(input.Data))

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(input.Data, input.MIMEType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	resp, err := p.models.GenerateContent(ctx, backend, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return firstInlineImage(resp, backend)
}

func firstInlineImage(resp *genai.GenerateContentResponse, backend string) (*models.InputMedia, error) {
	if resp != nil {
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					return &models.InputMedia{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
				}
			}
		}
		if text := strings.TrimSpace(resp.Text()); text != "" {
			return nil, provider.BackendErrorf(models.ProviderGemini, "%s returned text instead of an image: %s", backend, text)
		}
	}
	return nil, provider.BackendErrorf(models.ProviderGemini, "%s returned no image", backend)
}

func wrapErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return &provider.BackendError{Provider: models.ProviderGemini, Cause: apiErr.Message, Err: err}
	}
	return provider.NewBackendError(models.ProviderGemini, err)
}
