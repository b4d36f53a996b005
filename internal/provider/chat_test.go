package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/manash/polychat/pkg/models"
)

type fakeGenerator struct {
	got   []*schema.Message
	nopts int
	reply *schema.Message
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.got = in
	f.nopts = len(opts)
	return f.reply, f.err
}

func TestChatMessages(t *testing.T) {
	m := &models.Model{ID: "c", SystemInstruction: "be brief"}
	msgs := ChatMessages(m, "hello")
	if len(msgs) != 2 {
		t.Fatalf("ChatMessages() len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != schema.System || msgs[0].Content != "be brief" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != schema.User || msgs[1].Content != "hello" {
		t.Errorf("second message = %+v", msgs[1])
	}

	if got := ChatMessages(&models.Model{ID: "plain"}, "hi"); len(got) != 1 {
		t.Errorf("ChatMessages() without system instruction len = %d, want 1", len(got))
	}
}

func TestGenerateChat(t *testing.T) {
	m := &models.Model{ID: "c", Name: "C", BackendName: "c-1", Capabilities: []models.Capability{models.CapabilityChat}}
	cfg := models.DefaultGenerationConfig()

	g := &fakeGenerator{reply: schema.AssistantMessage("hi there", nil)}
	got, err := GenerateChat(context.Background(), g, models.ProviderOpenAI, m, "hello", cfg)
	if err != nil {
		t.Fatalf("GenerateChat() error = %v", err)
	}
	if got != "hi there" {
		t.Errorf("GenerateChat() = %q", got)
	}
	if g.nopts != 4 {
		t.Errorf("options passed = %d, want 4", g.nopts)
	}

	g = &fakeGenerator{err: errors.New("rate limited")}
	_, err = GenerateChat(context.Background(), g, models.ProviderOpenAI, m, "hello", cfg)
	if !errors.Is(err, ErrBackend) || Describe(err) != "rate limited" {
		t.Errorf("GenerateChat() error = %v, want backend error", err)
	}

	g = &fakeGenerator{err: context.Canceled}
	if _, err := GenerateChat(context.Background(), g, models.ProviderOpenAI, m, "hello", cfg); !errors.Is(err, context.Canceled) || errors.Is(err, ErrBackend) {
		t.Errorf("GenerateChat() error = %v, want bare context.Canceled", err)
	}

	g = &fakeGenerator{reply: schema.AssistantMessage("  ", nil)}
	if _, err := GenerateChat(context.Background(), g, models.ProviderOpenAI, m, "hello", cfg); !errors.Is(err, ErrBackend) {
		t.Errorf("GenerateChat(empty reply) error = %v, want ErrBackend", err)
	}
}

func TestChatOptions(t *testing.T) {
	m := &models.Model{ID: "c", BackendName: "c-1", Capabilities: []models.Capability{models.CapabilityChat}}
	cfg := models.GenerationConfig{Temperature: 0.25, TopP: 0.5, TopK: 40, MaxOutputTokens: 256}

	opts := model.GetCommonOptions(&model.Options{}, ChatOptions(m, cfg)...)
	if opts.Model == nil || *opts.Model != "c-1" {
		t.Errorf("Model = %v, want c-1", opts.Model)
	}
	if opts.Temperature == nil || *opts.Temperature != 0.25 {
		t.Errorf("Temperature = %v, want 0.25", opts.Temperature)
	}
	if opts.TopP == nil || *opts.TopP != 0.5 {
		t.Errorf("TopP = %v, want 0.5", opts.TopP)
	}
	if opts.MaxTokens == nil || *opts.MaxTokens != 256 {
		t.Errorf("MaxTokens = %v, want 256", opts.MaxTokens)
	}
	if n := len(ChatOptions(m, cfg)); n != 4 {
		t.Errorf("len(ChatOptions()) = %d, want 4 with top-k left out", n)
	}
}
