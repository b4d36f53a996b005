package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/manash/polychat/internal/provider"
	"github.com/manash/polychat/internal/security"
	"github.com/manash/polychat/pkg/models"
)

var (
	defaultPollInterval = 10 * time.Second
	maxPollAttempts     = 60 // 10 minutes max at 10s intervals
)

// googleMediaHosts are the only hosts the API key is sent to.
var googleMediaHosts = []string{
	"generativelanguage.googleapis.com",
	"storage.googleapis.com",
	"googleusercontent.com",
}

func googleDownloadPolicy(extraHosts ...string) *security.URLPolicy {
	policy := security.NewURLPolicy(true)
	policy.AllowedHosts = append(append([]string{}, googleMediaHosts...), extraHosts...)
	return policy
}

var pollMessages = []string{
	"Warming up the video model...",
	"Composing scenes...",
	"Rendering frames...",
	"Adding final touches...",
}

// GenerateVideo starts a long-running Veo job, polls it until done and
// returns the produced clip. onProgress sees one message per poll.
func (p *Provider) GenerateVideo(ctx context.Context, prompt string, input *models.InputMedia, m *models.Model, onProgress provider.ProgressFunc) (*models.VideoResource, error) {
	backend := m.BackendFor(models.CapabilityVideo)

	var seed *genai.Image
	if input != nil {
		seed = &genai.Image{ImageBytes: input.Data, MIMEType: input.MIMEType}
	}

	onProgress("Starting video generation...")
	p.logger.Debug("generate videos", "model", backend, "seeded", seed != nil)

	op, err := p.models.GenerateVideos(ctx, backend, prompt, seed, &genai.GenerateVideosConfig{NumberOfVideos: 1})
	if err != nil {
		return nil, wrapErr(err)
	}

	op, err = p.pollOperation(ctx, op, onProgress)
	if err != nil {
		return nil, err
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return nil, provider.BackendErrorf(models.ProviderGemini, "video generation finished without a video")
	}
	v := op.Response.GeneratedVideos[0].Video

	onProgress("Downloading video...")
	out := &models.VideoResource{URI: v.URI, MIMEType: v.MIMEType, Data: v.VideoBytes}
	if out.MIMEType == "" {
		out.MIMEType = "video/mp4"
	}
	if len(out.Data) == 0 && out.URI != "" {
		data, err := p.downloadVideo(ctx, out.URI)
		if err != nil {
			return nil, err
		}
		out.Data = data
	}
	return out, nil
}

func (p *Provider) pollOperation(ctx context.Context, op *genai.GenerateVideosOperation, onProgress provider.ProgressFunc) (*genai.GenerateVideosOperation, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < p.maxPolls; attempt++ {
		if op.Done {
			if op.Error != nil {
				return nil, provider.BackendErrorf(models.ProviderGemini, "%v", operationMessage(op.Error))
			}
			return op, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			onProgress(pollMessages[attempt%len(pollMessages)])
			next, err := p.operations.GetVideosOperation(ctx, op, nil)
			if err != nil {
				return nil, wrapErr(err)
			}
			op = next
		}
	}

	if op.Done && op.Error == nil {
		return op, nil
	}
	return nil, fmt.Errorf("%w: exceeded maximum poll attempts", provider.ErrTimeout)
}

func operationMessage(e map[string]any) any {
	if msg, ok := e["message"]; ok {
		return msg
	}
	return e
}

// downloadVideo fetches the rendered clip. The file service requires the API
// key on the request.
func (p *Provider) downloadVideo(ctx context.Context, uri string) ([]byte, error) {
	if p.downloadPolicy != nil {
		if err := p.downloadPolicy.Validate(uri); err != nil {
			return nil, fmt.Errorf("refusing to download video: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.BackendErrorf(models.ProviderGemini, "video download failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
