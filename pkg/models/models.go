package models

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrModelNotFound    = errors.New("model not found")
	ErrTaskNotFound     = errors.New("task not found")
	ErrEmptyPrompt      = errors.New("prompt cannot be empty")
	ErrInvalidMedia     = errors.New("invalid input media")
	ErrNoModelsSelected = errors.New("at least one model must be selected")
)

type ProviderType string

const (
	ProviderGemini    ProviderType = "gemini"
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderMock      ProviderType = "mock"
)

// Capability tags a modality a model can serve.
type Capability string

const (
	CapabilityChat      Capability = "chat"
	CapabilityImage     Capability = "image"
	CapabilityImageEdit Capability = "image-edit"
	CapabilityVideo     Capability = "video"
)

func AllCapabilities() []Capability {
	return []Capability{CapabilityChat, CapabilityImage, CapabilityImageEdit, CapabilityVideo}
}

// Model is an immutable catalog entry. Instances are shared read-only.
type Model struct {
	ID                string
	Name              string
	Description       string
	Provider          ProviderType
	BackendName       string
	ImageBackendName  string
	EditBackendName   string
	VideoBackendName  string
	SystemInstruction string
	Capabilities      []Capability
	Premium           bool
}

func (m *Model) Has(c Capability) bool {
	return slices.Contains(m.Capabilities, c)
}

// BackendFor returns the backend model name used for the given capability.
// It returns "" when the model does not carry the capability.
func (m *Model) BackendFor(c Capability) string {
	if !m.Has(c) {
		return ""
	}
	switch c {
	case CapabilityImage:
		if m.ImageBackendName != "" {
			return m.ImageBackendName
		}
	case CapabilityImageEdit:
		if m.EditBackendName != "" {
			return m.EditBackendName
		}
	case CapabilityVideo:
		if m.VideoBackendName != "" {
			return m.VideoBackendName
		}
	}
	return m.BackendName
}

func (m *Model) String() string {
	return m.Name
}

type ModelRegistry struct {
	order  []string
	models map[string]*Model
	tasks  []*Task
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*Model),
	}
}

// Register adds a model. Registering an existing id replaces the entry but
// keeps its catalog position.
func (r *ModelRegistry) Register(m *Model) {
	if _, ok := r.models[m.ID]; !ok {
		r.order = append(r.order, m.ID)
	}
	r.models[m.ID] = m
}

func (r *ModelRegistry) RegisterTask(t *Task) {
	r.tasks = append(r.tasks, t)
}

func (r *ModelRegistry) Get(id string) (*Model, bool) {
	m, ok := r.models[id]
	return m, ok
}

// MustGet is for catalog constants that are known to exist.
func (r *ModelRegistry) MustGet(id string) *Model {
	m, ok := r.models[id]
	if !ok {
		panic(fmt.Sprintf("models: %s not registered", id))
	}
	return m
}

// List returns models in catalog order.
func (r *ModelRegistry) List() []*Model {
	out := make([]*Model, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

func (r *ModelRegistry) IDs() []string {
	return slices.Clone(r.order)
}

func (r *ModelRegistry) ListByCapability(c Capability) []*Model {
	var out []*Model
	for _, id := range r.order {
		if m := r.models[id]; m.Has(c) {
			out = append(out, m)
		}
	}
	return out
}

func (r *ModelRegistry) ListByProvider(p ProviderType) []*Model {
	var out []*Model
	for _, id := range r.order {
		if m := r.models[id]; m.Provider == p {
			out = append(out, m)
		}
	}
	return out
}

// Resolve maps ids to models, failing on the first unknown id.
func (r *ModelRegistry) Resolve(ids []string) ([]*Model, error) {
	out := make([]*Model, 0, len(ids))
	for _, id := range ids {
		m, ok := r.models[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrModelNotFound, id)
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *ModelRegistry) Tasks() []*Task {
	return slices.Clone(r.tasks)
}

func (r *ModelRegistry) Task(id string) (*Task, error) {
	for _, t := range r.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
}

const (
	ModelGemini       = "gemini"
	ModelChatGPT      = "chatgpt"
	ModelClaude       = "claude"
	ModelCopilot      = "copilot"
	ModelPerplexity   = "perplexity"
	ModelImagen       = "imagen"
	ModelVeo          = "veo"
	ModelWindsurf     = "windsurf"
	ModelRemini       = "remini"
	ModelVeer         = "veer"
	ModelVideoEnhance = "video_enhance"
)

const (
	geminiFlash      = "gemini-2.5-flash"
	geminiFlashImage = "gemini-2.5-flash-image"
	imagenBackend    = "imagen-4.0-generate-001"
	veoBackend       = "veo-2.0-generate-001"
)

// DefaultRegistry returns the built-in catalog. Every model is served by the
// Gemini backend unless a provider override is configured by the caller.
func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	chat := []Capability{CapabilityChat}

	r.Register(&Model{
		ID:                ModelGemini,
		Name:              "Gemini",
		Description:       "For powerful search and multi-modal tasks.",
		Provider:          ProviderGemini,
		BackendName:       geminiFlash,
		SystemInstruction: "You are Gemini, a powerful and helpful AI assistant from Google. Provide comprehensive and accurate information.",
		Capabilities:      chat,
	})

	r.Register(&Model{
		ID:                ModelChatGPT,
		Name:              "ChatGPT",
		Description:       "For creative writing and conversation.",
		Provider:          ProviderGemini,
		BackendName:       geminiFlash,
		SystemInstruction: "You are ChatGPT, a creative and conversational AI. Your responses should be engaging and imaginative.",
		Capabilities:      chat,
	})

	r.Register(&Model{
		ID:                ModelClaude,
		Name:              "Claude",
		Description:       "For long-context reasoning and analysis.",
		Provider:          ProviderGemini,
		BackendName:       geminiFlash,
		SystemInstruction: "You are Claude, an AI specializing in detailed analysis and reasoning over large amounts of text. Be thorough and thoughtful.",
		Capabilities:      chat,
	})

	r.Register(&Model{
		ID:                ModelCopilot,
		Name:              "Copilot",
		Description:       "Your go-to for coding and development.",
		Provider:          ProviderGemini,
		BackendName:       geminiFlash,
		SystemInstruction: "You are a world-class AI coding assistant. Provide clean, efficient, and well-explained code snippets. Use markdown for code blocks.",
		Capabilities:      chat,
	})

	r.Register(&Model{
		ID:                ModelPerplexity,
		Name:              "Perplexity",
		Description:       "For web-sourced summaries and research.",
		Provider:          ProviderGemini,
		BackendName:       geminiFlash,
		SystemInstruction: "You are an AI research assistant. Your goal is to provide concise, web-sourced summaries with citations. Start your response with the main summary, followed by sources if applicable.",
		Capabilities:      chat,
	})

	r.Register(&Model{
		ID:               ModelImagen,
		Name:             "Imagen",
		Description:      "For high-quality, professional-grade image generation.",
		Provider:         ProviderGemini,
		BackendName:      imagenBackend,
		ImageBackendName: imagenBackend,
		EditBackendName:  geminiFlashImage,
		Capabilities:     []Capability{CapabilityImage, CapabilityImageEdit},
		Premium:          true,
	})

	r.Register(&Model{
		ID:           ModelVeo,
		Name:         "Veo",
		Description:  "For cinematic, high-definition video generation.",
		Provider:     ProviderGemini,
		BackendName:  veoBackend,
		Capabilities: []Capability{CapabilityVideo},
		Premium:      true,
	})

	r.Register(&Model{
		ID:                ModelWindsurf,
		Name:              "Windsurf",
		Description:       "For bold, adventurous, and fast-paced ideas.",
		Provider:          ProviderGemini,
		BackendName:       geminiFlash,
		SystemInstruction: "You are Windsurf, an adventurous and dynamic AI. Your responses are energetic, inspiring, and straight to the point, like a gust of wind.",
		Capabilities:      chat,
	})

	r.Register(&Model{
		ID:           ModelRemini,
		Name:         "Remini",
		Description:  "Enhance and upscale images for free.",
		Provider:     ProviderGemini,
		BackendName:  geminiFlashImage,
		Capabilities: []Capability{CapabilityImage, CapabilityImageEdit},
	})

	r.Register(&Model{
		ID:           ModelVeer,
		Name:         "Veer AI",
		Description:  "Generate short video clips for free.",
		Provider:     ProviderGemini,
		BackendName:  veoBackend,
		Capabilities: []Capability{CapabilityVideo},
	})

	r.Register(&Model{
		ID:           ModelVideoEnhance,
		Name:         "Video Enhance",
		Description:  "Improve the quality of your video clips for free.",
		Provider:     ProviderGemini,
		BackendName:  veoBackend,
		Capabilities: []Capability{CapabilityVideo},
	})

	for _, t := range defaultTasks() {
		r.RegisterTask(t)
	}

	return r
}

// WithProvider returns a copy of the registry in which every model is served
// by p. Used for offline runs and for routing the catalog to a single backend.
func (r *ModelRegistry) WithProvider(p ProviderType) *ModelRegistry {
	out := NewModelRegistry()
	for _, id := range r.order {
		m := *r.models[id]
		m.Capabilities = slices.Clone(m.Capabilities)
		m.Provider = p
		out.Register(&m)
	}
	out.tasks = slices.Clone(r.tasks)
	return out
}

// WithOverrides returns a copy of the registry where the listed model ids are
// routed to another provider and backend name. A backend name override
// replaces the per-capability names as well. Unknown ids are reported.
func (r *ModelRegistry) WithOverrides(overrides map[string]Override) (*ModelRegistry, error) {
	out := NewModelRegistry()
	for id := range overrides {
		if _, ok := r.models[id]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrModelNotFound, id)
		}
	}
	for _, id := range r.order {
		m := *r.models[id]
		m.Capabilities = slices.Clone(m.Capabilities)
		if o, ok := overrides[id]; ok {
			m.Provider = o.Provider
			if o.BackendName != "" {
				m.BackendName = o.BackendName
				m.ImageBackendName, m.EditBackendName, m.VideoBackendName = "", "", ""
			}
		}
		out.Register(&m)
	}
	out.tasks = slices.Clone(r.tasks)
	return out, nil
}

// Override reroutes a catalog model to a different backend.
type Override struct {
	Provider    ProviderType
	BackendName string
}
