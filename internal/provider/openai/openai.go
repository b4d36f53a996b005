// Package openai serves chat through eino's OpenAI model and images and video
// through the OpenAI REST API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/manash/polychat/internal/provider"
	"github.com/manash/polychat/pkg/models"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultTimeout   = 120 * time.Second
	defaultChatModel = "gpt-4o-mini"
)

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	chat       provider.ChatGenerator
	verbose    bool
	logger     *slog.Logger
}

var _ provider.Backend = (*Provider)(nil)

func New(ctx context.Context, cfg *provider.Config, logger *slog.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout(defaultTimeout)

	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: baseURL,
		Model:   defaultChatModel,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	p := newProvider(cfg, baseURL, chat, logger)
	p.httpClient.Timeout = timeout
	return p, nil
}

func newProvider(cfg *provider.Config, baseURL string, chat provider.ChatGenerator, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		chat:       chat,
		verbose:    cfg.Verbose,
		logger:     logger.With("provider", models.ProviderOpenAI),
	}
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderOpenAI
}

func (p *Provider) GenerateText(ctx context.Context, prompt string, m *models.Model, cfg models.GenerationConfig) (string, error) {
	return provider.GenerateChat(ctx, p.chat, models.ProviderOpenAI, m, prompt, cfg)
}

// do sends req and returns the body. A non-2xx status or an error payload
// becomes a BackendError.
func (p *Provider) do(req *http.Request, reqBody []byte) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	p.logRequest(req.Method, req.URL.String(), req.Header, reqBody)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	p.logResponse(resp.StatusCode, resp.Header, body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Error *apiError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			return nil, provider.BackendErrorf(models.ProviderOpenAI, "%s", envelope.Error.Message)
		}
		return nil, provider.BackendErrorf(models.ProviderOpenAI, "status %d", resp.StatusCode)
	}
	return body, nil
}

func (p *Provider) logRequest(method, url string, headers http.Header, body []byte) {
	if !p.verbose {
		return
	}
	attrs := []any{"method", method, "url", url, "headers", redactHeaders(headers)}
	if len(body) > 0 {
		attrs = append(attrs, "body", logBody(body))
	}
	p.logger.Debug("request", attrs...)
}

func (p *Provider) logResponse(statusCode int, headers http.Header, body []byte) {
	if !p.verbose {
		return
	}
	attrs := []any{"status", statusCode, "headers", redactHeaders(headers)}
	if len(body) > 0 {
		attrs = append(attrs, "body", logBody(body))
	}
	p.logger.Debug("response", attrs...)
}

func redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		value := strings.Join(values, ", ")
		if strings.EqualFold(key, "authorization") {
			value = "[REDACTED]"
		}
		out[key] = value
	}
	return out
}

const maxLoggedBody = 2048

func logBody(body []byte) string {
	out := truncateBase64InJSON(body)
	if len(out) > maxLoggedBody {
		return string(out[:maxLoggedBody]) + "... [truncated]"
	}
	return string(out)
}

func truncateBase64InJSON(body []byte) []byte {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	truncateBase64Fields(data)

	result, err := json.Marshal(data)
	if err != nil {
		return body
	}
	return result
}

func truncateBase64Fields(data map[string]interface{}) {
	for key, value := range data {
		switch v := value.(type) {
		case string:
			if key == "b64_json" && len(v) > 100 {
				data[key] = v[:100] + "... [truncated]"
			}
		case map[string]interface{}:
			truncateBase64Fields(v)
		case []interface{}:
			for _, item := range v {
				if m, ok := item.(map[string]interface{}); ok {
					truncateBase64Fields(m)
				}
			}
		}
	}
}
