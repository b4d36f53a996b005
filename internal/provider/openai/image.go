package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/manash/polychat/internal/provider"
	"github.com/manash/polychat/pkg/models"
)

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	OutputFormat   string `json:"output_format,omitempty"`
}

type imageResponse struct {
	Created int64       `json:"created"`
	Data    []imageData `json:"data"`
}

type imageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

func buildImageRequest(backend, prompt string) *imageRequest {
	req := &imageRequest{Model: backend, Prompt: prompt, N: 1}
	switch backend {
	case "gpt-image-1":
		req.OutputFormat = "png"
	case "dall-e-3", "dall-e-2":
		req.ResponseFormat = "b64_json"
	}
	return req
}

func (p *Provider) GenerateImage(ctx context.Context, prompt string, m *models.Model) (*models.InputMedia, error) {
	jsonData, err := json.Marshal(buildImageRequest(m.BackendFor(models.CapabilityImage), prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/images/generations", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := p.do(req, jsonData)
	if err != nil {
		return nil, err
	}
	return p.firstImage(ctx, body)
}

func (p *Provider) EditImage(ctx context.Context, prompt string, input *models.InputMedia, m *models.Model) (*models.InputMedia, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	imagePart, err := writer.CreateFormFile("image", "image."+input.Extension())
	if err != nil {
		return nil, fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := imagePart.Write(input.Data); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	if err := writer.WriteField("prompt", prompt); err != nil {
		return nil, fmt.Errorf("failed to write prompt: %w", err)
	}
	backend := m.BackendFor(models.CapabilityImageEdit)
	if err := writer.WriteField("model", backend); err != nil {
		return nil, fmt.Errorf("failed to write model: %w", err)
	}
	if backend == "dall-e-2" {
		if err := writer.WriteField("response_format", "b64_json"); err != nil {
			return nil, fmt.Errorf("failed to write response_format: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/images/edits", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	p.logger.Debug("edit image", "model", backend, "image_bytes", len(input.Data), "prompt", prompt)
	respBody, err := p.do(req, nil)
	if err != nil {
		return nil, err
	}
	return p.firstImage(ctx, respBody)
}

func (p *Provider) firstImage(ctx context.Context, body []byte) (*models.InputMedia, error) {
	var resp imageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, provider.BackendErrorf(models.ProviderOpenAI, "no image returned")
	}

	data := resp.Data[0]
	if data.RevisedPrompt != "" {
		p.logger.Debug("prompt revised", "revised_prompt", data.RevisedPrompt)
	}
	if data.B64JSON != "" {
		decoded, err := base64.StdEncoding.DecodeString(data.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		return models.NewInputMedia(decoded, ""), nil
	}
	if data.URL != "" {
		raw, err := p.download(ctx, data.URL)
		if err != nil {
			return nil, err
		}
		return models.NewInputMedia(raw, ""), nil
	}
	return nil, provider.BackendErrorf(models.ProviderOpenAI, "image response carried no data")
}

func (p *Provider) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
