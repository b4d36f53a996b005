package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/manash/polychat/internal/provider"
	"github.com/manash/polychat/pkg/models"
)

var (
	defaultPollInterval = 2 * time.Second
	maxPollAttempts     = 300 // 10 minutes max at 2s intervals
)

type videoJobResponse struct {
	ID        string          `json:"id"`
	Object    string          `json:"object"`
	CreatedAt int64           `json:"created_at"`
	Status    string          `json:"status"`
	Model     string          `json:"model"`
	Progress  json.RawMessage `json:"progress,omitempty"` // Can be int or string
	Error     *apiError       `json:"error,omitempty"`
}

func (j *videoJobResponse) progress() (int, bool) {
	if len(j.Progress) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(j.Progress, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(j.Progress, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
	}
	return 0, false
}

// GenerateVideo runs a Sora job: create, poll until completed, download.
func (p *Provider) GenerateVideo(ctx context.Context, prompt string, input *models.InputMedia, m *models.Model, onProgress provider.ProgressFunc) (*models.VideoResource, error) {
	onProgress("Starting video generation...")
	job, err := p.createVideoJob(ctx, prompt, input, m.BackendFor(models.CapabilityVideo))
	if err != nil {
		return nil, err
	}

	completed, err := p.pollVideoStatus(ctx, job.ID, onProgress)
	if err != nil {
		return nil, err
	}

	onProgress("Downloading video...")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/videos/"+completed.ID+"/content", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	data, err := p.do(req, nil)
	if err != nil {
		return nil, err
	}
	return &models.VideoResource{Data: data, MIMEType: "video/mp4"}, nil
}

func (p *Provider) createVideoJob(ctx context.Context, prompt string, input *models.InputMedia, backend string) (*videoJobResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("prompt", prompt); err != nil {
		return nil, fmt.Errorf("failed to write prompt field: %w", err)
	}
	if err := writer.WriteField("model", backend); err != nil {
		return nil, fmt.Errorf("failed to write model field: %w", err)
	}
	if input != nil {
		part, err := writer.CreateFormFile("input_reference", "reference."+input.Extension())
		if err != nil {
			return nil, fmt.Errorf("failed to create reference part: %w", err)
		}
		if _, err := part.Write(input.Data); err != nil {
			return nil, fmt.Errorf("failed to write reference: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to create form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/videos", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, err := p.do(req, nil)
	if err != nil {
		return nil, err
	}

	var job videoJobResponse
	if err := json.Unmarshal(respBody, &job); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if job.Error != nil {
		return nil, provider.BackendErrorf(models.ProviderOpenAI, "%s", job.Error.Message)
	}
	return &job, nil
}

func (p *Provider) pollVideoStatus(ctx context.Context, videoID string, onProgress provider.ProgressFunc) (*videoJobResponse, error) {
	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			job, err := p.getVideoStatus(ctx, videoID)
			if err != nil {
				return nil, err
			}

			switch job.Status {
			case "completed":
				return job, nil
			case "failed":
				errMsg := "video generation failed"
				if job.Error != nil {
					errMsg = job.Error.Message
				}
				return nil, provider.BackendErrorf(models.ProviderOpenAI, "%s", errMsg)
			case "queued":
				onProgress("Waiting in queue...")
			case "in_progress":
				if pct, ok := job.progress(); ok {
					onProgress(fmt.Sprintf("Rendering video (%d%%)...", pct))
				} else {
					onProgress("Rendering video...")
				}
			default:
				return nil, fmt.Errorf("unknown video status: %s", job.Status)
			}
		}
	}

	return nil, fmt.Errorf("%w: exceeded maximum poll attempts", provider.ErrTimeout)
}

func (p *Provider) getVideoStatus(ctx context.Context, videoID string) (*videoJobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/videos/"+videoID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := p.do(req, nil)
	if err != nil {
		return nil, err
	}

	var job videoJobResponse
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &job, nil
}
