// Package mock provides an offline backend that answers every modality with
// deterministic synthetic output. It backs the --offline flag and the
// end-to-end tests of the CLI.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"strings"
	"time"

	"github.com/manash/polychat/internal/provider"
	"github.com/manash/polychat/pkg/models"
)

const defaultVideoSteps = 3

type Provider struct {
	latency    time.Duration
	videoSteps int
	failModels map[string]bool
}

var _ provider.Backend = (*Provider)(nil)

type Option func(*Provider)

// WithLatency delays every call, which makes concurrent dispatch visible.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithVideoSteps sets how many progress updates a video generation emits.
func WithVideoSteps(n int) Option {
	return func(p *Provider) { p.videoSteps = n }
}

// WithFailingModels makes calls for the given model ids fail with a backend error.
func WithFailingModels(ids ...string) Option {
	return func(p *Provider) {
		for _, id := range ids {
			p.failModels[id] = true
		}
	}
}

func New(opts ...Option) *Provider {
	p := &Provider{
		videoSteps: defaultVideoSteps,
		failModels: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderMock
}

func (p *Provider) GenerateText(ctx context.Context, prompt string, m *models.Model, cfg models.GenerationConfig) (string, error) {
	if err := p.wait(ctx, m); err != nil {
		return "", err
	}
	if looksLikeBuildRequest(prompt) {
		return fmt.Sprintf("```json\n{\"html\":\"<h1>%s</h1>\",\"css\":\"h1{font-family:sans-serif}\",\"javascript\":\"console.log('ready')\"}\n```", m.Name), nil
	}
	words := strings.Fields(prompt)
	if len(words) > 12 {
		words = words[:12]
	}
	return fmt.Sprintf("[%s] (temperature %.1f) You asked about: %s", m.Name, cfg.Temperature, strings.Join(words, " ")), nil
}

func (p *Provider) GenerateImage(ctx context.Context, prompt string, m *models.Model) (*models.InputMedia, error) {
	if err := p.wait(ctx, m); err != nil {
		return nil, err
	}
	return solidPNG(prompt)
}

func (p *Provider) EditImage(ctx context.Context, prompt string, input *models.InputMedia, m *models.Model) (*models.InputMedia, error) {
	if err := p.wait(ctx, m); err != nil {
		return nil, err
	}
	return solidPNG(prompt + input.MIMEType)
}

func (p *Provider) GenerateVideo(ctx context.Context, prompt string, input *models.InputMedia, m *models.Model, onProgress provider.ProgressFunc) (*models.VideoResource, error) {
	onProgress("Starting video generation...")
	for i := 1; i <= p.videoSteps; i++ {
		if err := p.wait(ctx, m); err != nil {
			return nil, err
		}
		onProgress(fmt.Sprintf("Rendering frames (%d/%d)...", i, p.videoSteps))
	}
	if p.failModels[m.ID] {
		return nil, provider.BackendErrorf(models.ProviderMock, "synthetic failure for %s", m.ID)
	}
	seeded := "text"
	if input != nil {
		seeded = "image"
	}
	return &models.VideoResource{
		Data:     []byte(fmt.Sprintf("mock-video:%s:%s:%s", m.ID, seeded, prompt)),
		MIMEType: "video/mp4",
	}, nil
}

func (p *Provider) wait(ctx context.Context, m *models.Model) error {
	if p.latency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.failModels[m.ID] {
		return provider.BackendErrorf(models.ProviderMock, "synthetic failure for %s", m.ID)
	}
	return nil
}

func looksLikeBuildRequest(prompt string) bool {
	return strings.Contains(prompt, `"html"`) && strings.Contains(prompt, `"javascript"`)
}

// solidPNG renders a small square whose colour is derived from seed.
func solidPNG(seed string) (*models.InputMedia, error) {
	h := fnv.New32a()
	h.Write([]byte(seed))
	sum := h.Sum32()
	c := color.RGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return &models.InputMedia{Data: buf.Bytes(), MIMEType: "image/png"}, nil
}
