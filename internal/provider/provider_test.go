package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/manash/polychat/pkg/models"
)

// stubBackend is a test implementation of Backend.
type stubBackend struct {
	name  models.ProviderType
	calls []string
	text  string
	err   error
}

func (s *stubBackend) Name() models.ProviderType {
	return s.name
}

func (s *stubBackend) GenerateText(_ context.Context, prompt string, m *models.Model, _ models.GenerationConfig) (string, error) {
	s.calls = append(s.calls, "text:"+m.ID)
	if s.err != nil {
		return "", s.err
	}
	return s.text + prompt, nil
}

func (s *stubBackend) GenerateImage(_ context.Context, _ string, m *models.Model) (*models.InputMedia, error) {
	s.calls = append(s.calls, "image:"+m.ID)
	return &models.InputMedia{Data: []byte{1}, MIMEType: "image/png"}, s.err
}

func (s *stubBackend) EditImage(_ context.Context, _ string, _ *models.InputMedia, m *models.Model) (*models.InputMedia, error) {
	s.calls = append(s.calls, "edit:"+m.ID)
	return &models.InputMedia{Data: []byte{1}, MIMEType: "image/png"}, s.err
}

func (s *stubBackend) GenerateVideo(_ context.Context, _ string, _ *models.InputMedia, m *models.Model, onProgress ProgressFunc) (*models.VideoResource, error) {
	s.calls = append(s.calls, "video:"+m.ID)
	onProgress("working")
	return &models.VideoResource{Data: []byte{1}, MIMEType: "video/mp4"}, s.err
}

func testModel(id string, p models.ProviderType, caps ...models.Capability) *models.Model {
	return &models.Model{ID: id, Name: id, Provider: p, BackendName: id + "-backend", Capabilities: caps}
}

func TestRouter_Dispatch(t *testing.T) {
	gem := &stubBackend{name: models.ProviderGemini, text: "gem:"}
	oai := &stubBackend{name: models.ProviderOpenAI, text: "oai:"}

	r := NewRouter(nil)
	r.Register(gem)
	r.Register(oai)

	ctx := context.Background()
	cfg := models.DefaultGenerationConfig()

	got, err := r.GenerateText(ctx, "hi", testModel("a", models.ProviderOpenAI, models.CapabilityChat), cfg)
	if err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if got != "oai:hi" {
		t.Errorf("GenerateText() = %v, want oai:hi", got)
	}
	if len(gem.calls) != 0 {
		t.Errorf("gemini backend received calls: %v", gem.calls)
	}

	providers := r.ListProviders()
	if len(providers) != 2 || providers[0] != models.ProviderGemini {
		t.Errorf("ListProviders() = %v", providers)
	}
}

func TestRouter_UnsupportedModel(t *testing.T) {
	b := &stubBackend{name: models.ProviderGemini}
	r := NewRouter(nil)
	r.Register(b)

	ctx := context.Background()
	chatOnly := testModel("chat", models.ProviderGemini, models.CapabilityChat)
	imageOnly := testModel("img", models.ProviderGemini, models.CapabilityImage)
	png := &models.InputMedia{Data: []byte{1}, MIMEType: "image/png"}

	tests := []struct {
		name string
		call func() error
	}{
		{"image on chat model", func() error { _, err := r.GenerateImage(ctx, "p", chatOnly); return err }},
		{"edit on image-only model", func() error { _, err := r.EditImage(ctx, "p", png, imageOnly); return err }},
		{"video on chat model", func() error { _, err := r.GenerateVideo(ctx, "p", nil, chatOnly, nil); return err }},
		{"text on image model", func() error {
			_, err := r.GenerateText(ctx, "p", imageOnly, models.DefaultGenerationConfig())
			return err
		}},
		{"nil model", func() error { _, err := r.GenerateImage(ctx, "p", nil); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrUnsupportedModel) {
				t.Errorf("error = %v, want ErrUnsupportedModel", err)
			}
		})
	}
	if len(b.calls) != 0 {
		t.Errorf("backend should not be called for unsupported operations: %v", b.calls)
	}
}

func TestRouter_InvalidInput(t *testing.T) {
	r := NewRouter(nil)
	r.Register(&stubBackend{name: models.ProviderGemini})
	ctx := context.Background()

	editor := testModel("ed", models.ProviderGemini, models.CapabilityImageEdit, models.CapabilityVideo)

	if _, err := r.EditImage(ctx, "p", &models.InputMedia{MIMEType: "image/png"}, editor); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("EditImage(empty) error = %v, want ErrInvalidInput", err)
	}
	if _, err := r.EditImage(ctx, "p", &models.InputMedia{Data: []byte("x"), MIMEType: "text/plain"}, editor); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("EditImage(text) error = %v, want ErrInvalidInput", err)
	}
	if _, err := r.GenerateVideo(ctx, "", nil, editor, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("GenerateVideo(no prompt, no seed) error = %v, want ErrInvalidInput", err)
	}
	if _, err := r.GenerateText(ctx, "", testModel("c", models.ProviderGemini, models.CapabilityChat), models.DefaultGenerationConfig()); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("GenerateText(empty) error = %v, want ErrInvalidInput", err)
	}
}

func TestRouter_ProviderNotConfigured(t *testing.T) {
	r := NewRouter(nil)
	_, err := r.GenerateText(context.Background(), "p", testModel("c", models.ProviderAnthropic, models.CapabilityChat), models.DefaultGenerationConfig())
	if !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("error = %v, want ErrProviderNotFound", err)
	}
}

func TestRouter_VideoNilProgress(t *testing.T) {
	r := NewRouter(nil)
	r.Register(&stubBackend{name: models.ProviderGemini})

	_, err := r.GenerateVideo(context.Background(), "p", nil, testModel("v", models.ProviderGemini, models.CapabilityVideo), nil)
	if err != nil {
		t.Fatalf("GenerateVideo() error = %v", err)
	}
}

func TestBackendError(t *testing.T) {
	err := error(BackendErrorf(models.ProviderOpenAI, "quota exceeded"))

	if !errors.Is(err, ErrBackend) {
		t.Error("BackendError should match ErrBackend")
	}
	if Describe(err) != "quota exceeded" {
		t.Errorf("Describe() = %v", Describe(err))
	}
	if err.Error() != "openai: quota exceeded" {
		t.Errorf("Error() = %v", err.Error())
	}

	wrapped := NewBackendError(models.ProviderGemini, context.DeadlineExceeded)
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Error("NewBackendError should unwrap to its cause")
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{context.DeadlineExceeded, "The request timed out. Please try again."},
		{ErrTimeout, "The request timed out. Please try again."},
		{context.Canceled, "The request was cancelled."},
		{ErrUnsupportedModel, ErrUnsupportedModel.Error()},
	}

	for _, tt := range tests {
		if got := Describe(tt.err); got != tt.want {
			t.Errorf("Describe(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
