package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/manash/polychat/pkg/models"
)

// ChatGenerator is the part of an eino chat model the text backends use.
type ChatGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ChatMessages builds the conversation for a single-turn request. The model's
// system instruction, when present, goes first.
func ChatMessages(m *models.Model, prompt string) []*schema.Message {
	msgs := make([]*schema.Message, 0, 2)
	if m.SystemInstruction != "" {
		msgs = append(msgs, schema.SystemMessage(m.SystemInstruction))
	}
	return append(msgs, schema.UserMessage(prompt))
}

// ChatOptions maps a generation config onto eino call options. TopK is not
// sent: the common eino options have no top-k and the OpenAI API lacks one.
func ChatOptions(m *models.Model, cfg models.GenerationConfig) []model.Option {
	return []model.Option{
		model.WithModel(m.BackendFor(models.CapabilityChat)),
		model.WithTemperature(float32(cfg.Temperature)),
		model.WithTopP(float32(cfg.TopP)),
		model.WithMaxTokens(cfg.MaxOutputTokens),
	}
}

// GenerateChat runs one eino request and unwraps the reply text. Failures are
// reported as BackendError tagged with p.
func GenerateChat(ctx context.Context, g ChatGenerator, p models.ProviderType, m *models.Model, prompt string, cfg models.GenerationConfig) (string, error) {
	msg, err := g.Generate(ctx, ChatMessages(m, prompt), ChatOptions(m, cfg)...)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", NewBackendError(p, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", BackendErrorf(p, "empty response from %s", m.BackendFor(models.CapabilityChat))
	}
	return msg.Content, nil
}
