package models

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultRegistry_Order(t *testing.T) {
	r := DefaultRegistry()

	want := []string{
		ModelGemini, ModelChatGPT, ModelClaude, ModelCopilot, ModelPerplexity,
		ModelImagen, ModelVeo, ModelWindsurf, ModelRemini, ModelVeer, ModelVideoEnhance,
	}
	got := r.IDs()
	if len(got) != len(want) {
		t.Fatalf("IDs() returned %d models, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("IDs()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	list := r.List()
	for i, m := range list {
		if m.ID != want[i] {
			t.Errorf("List()[%d].ID = %v, want %v", i, m.ID, want[i])
		}
	}
}

func TestModelRegistry_Get(t *testing.T) {
	r := DefaultRegistry()

	m, ok := r.Get(ModelImagen)
	if !ok {
		t.Fatal("Get(imagen) not found")
	}
	if !m.Premium {
		t.Error("imagen should be premium")
	}

	if _, ok := r.Get("nope"); ok {
		t.Error("Get(nope) should not be found")
	}
}

func TestModelRegistry_RegisterReplaceKeepsOrder(t *testing.T) {
	r := NewModelRegistry()
	r.Register(&Model{ID: "a", Name: "A"})
	r.Register(&Model{ID: "b", Name: "B"})
	r.Register(&Model{ID: "a", Name: "A2"})

	ids := r.IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("IDs() = %v, want [a b]", ids)
	}
	if m, _ := r.Get("a"); m.Name != "A2" {
		t.Errorf("Get(a).Name = %v, want A2", m.Name)
	}
}

func TestModelRegistry_ListByCapability(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		cap  Capability
		want []string
	}{
		{CapabilityImage, []string{ModelImagen, ModelRemini}},
		{CapabilityVideo, []string{ModelVeo, ModelVeer, ModelVideoEnhance}},
	}

	for _, tt := range tests {
		t.Run(string(tt.cap), func(t *testing.T) {
			got := r.ListByCapability(tt.cap)
			if len(got) != len(tt.want) {
				t.Fatalf("ListByCapability(%s) returned %d, want %d", tt.cap, len(got), len(tt.want))
			}
			for i, m := range got {
				if m.ID != tt.want[i] {
					t.Errorf("ListByCapability(%s)[%d] = %v, want %v", tt.cap, i, m.ID, tt.want[i])
				}
			}
		})
	}

	if n := len(r.ListByCapability(CapabilityChat)); n != 6 {
		t.Errorf("ListByCapability(chat) returned %d, want 6", n)
	}
}

func TestModelRegistry_Resolve(t *testing.T) {
	r := DefaultRegistry()

	ms, err := r.Resolve([]string{ModelClaude, ModelGemini})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ms[0].ID != ModelClaude || ms[1].ID != ModelGemini {
		t.Errorf("Resolve() order not preserved: %v", ms)
	}

	_, err = r.Resolve([]string{ModelGemini, "ghost"})
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Resolve() error = %v, want ErrModelNotFound", err)
	}
}

func TestModel_BackendFor(t *testing.T) {
	r := DefaultRegistry()
	imagen := r.MustGet(ModelImagen)

	if got := imagen.BackendFor(CapabilityImage); got != "imagen-4.0-generate-001" {
		t.Errorf("BackendFor(image) = %v", got)
	}
	if got := imagen.BackendFor(CapabilityImageEdit); got != "gemini-2.5-flash-image" {
		t.Errorf("BackendFor(image-edit) = %v", got)
	}
	if got := imagen.BackendFor(CapabilityChat); got != "" {
		t.Errorf("BackendFor(chat) = %v, want empty", got)
	}
}

func TestModelRegistry_WithProvider(t *testing.T) {
	r := DefaultRegistry()
	mock := r.WithProvider(ProviderMock)

	for _, m := range mock.List() {
		if m.Provider != ProviderMock {
			t.Errorf("%s provider = %v, want mock", m.ID, m.Provider)
		}
	}
	if orig := r.MustGet(ModelGemini); orig.Provider != ProviderGemini {
		t.Error("WithProvider() mutated the source registry")
	}
	if len(mock.Tasks()) != len(r.Tasks()) {
		t.Error("WithProvider() dropped tasks")
	}
}

func TestModelRegistry_WithOverrides(t *testing.T) {
	r := DefaultRegistry()

	out, err := r.WithOverrides(map[string]Override{
		ModelClaude: {Provider: ProviderAnthropic, BackendName: "claude-sonnet-4-5"},
	})
	if err != nil {
		t.Fatalf("WithOverrides() error = %v", err)
	}
	c := out.MustGet(ModelClaude)
	if c.Provider != ProviderAnthropic || c.BackendName != "claude-sonnet-4-5" {
		t.Errorf("override not applied: %+v", c)
	}
	if g := out.MustGet(ModelGemini); g.Provider != ProviderGemini {
		t.Errorf("unrelated model rerouted: %v", g.Provider)
	}

	if _, err := r.WithOverrides(map[string]Override{"ghost": {Provider: ProviderOpenAI}}); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("WithOverrides(ghost) error = %v, want ErrModelNotFound", err)
	}
}

func TestModelRegistry_Task(t *testing.T) {
	r := DefaultRegistry()

	task, err := r.Task("video_generation")
	if err != nil {
		t.Fatalf("Task() error = %v", err)
	}
	if task.RecommendedModel != ModelVeo || task.TargetMode != ModeVideoGeneration {
		t.Errorf("Task(video_generation) = %+v", task)
	}
	for _, task := range r.Tasks() {
		if _, ok := r.Get(task.RecommendedModel); !ok {
			t.Errorf("task %s recommends unknown model %s", task.ID, task.RecommendedModel)
		}
	}

	if _, err := r.Task("nope"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Task(nope) error = %v, want ErrTaskNotFound", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"chat", ModeChat, false},
		{"compare", ModeCompare, false},
		{"image", ModeImageGeneration, false},
		{"video_generation", ModeVideoGeneration, false},
		{"build", ModeAppBuilder, false},
		{"karaoke", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeriveTitle(t *testing.T) {
	long := "Explain quantum entanglement in simple terms please"

	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"long prompt truncated", long, long[:40] + "..."},
		{"short prompt verbatim", "Hello there", "Hello there"},
		{"exactly forty", strings.Repeat("a", 40), strings.Repeat("a", 40)},
		{"multibyte counts runes", strings.Repeat("é", 41), strings.Repeat("é", 40) + "..."},
		{"empty", "", DefaultTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(tt.prompt); got != tt.want {
				t.Errorf("DeriveTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewMessageID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewMessageID()
		if seen[id] {
			t.Fatalf("duplicate id after %d iterations: %s", i, id)
		}
		seen[id] = true
	}
}

func TestChatSession_Clone(t *testing.T) {
	s := &ChatSession{ID: "s", Messages: []Message{NewUserMessage("hi")}}
	c := s.Clone()
	c.Messages[0].Content = "changed"
	c.Messages = append(c.Messages, NewUserMessage("more"))

	if s.Messages[0].Content != "hi" || len(s.Messages) != 1 {
		t.Error("Clone() shares message storage with the original")
	}
}

func TestNewErrorMessage(t *testing.T) {
	m := NewErrorMessage("boom", &Model{ID: "x"})
	if m.Author != AuthorAssistant || !m.Failed || m.ModelID != "x" {
		t.Errorf("NewErrorMessage() = %+v", m)
	}
}
