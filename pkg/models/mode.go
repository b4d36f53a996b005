package models

import (
	"fmt"
	"slices"
)

// Mode is the current interaction type. It governs which model selections
// are allowed.
type Mode string

const (
	ModeChat            Mode = "chat"
	ModeCompare         Mode = "compare"
	ModeImageGeneration Mode = "image_generation"
	ModeVideoGeneration Mode = "video_generation"
	ModeAppBuilder      Mode = "app_builder"
)

func AllModes() []Mode {
	return []Mode{ModeChat, ModeCompare, ModeImageGeneration, ModeVideoGeneration, ModeAppBuilder}
}

func (m Mode) IsValid() bool {
	return slices.Contains(AllModes(), m)
}

func (m Mode) String() string {
	return string(m)
}

func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	switch s {
	case "image":
		m = ModeImageGeneration
	case "video":
		m = ModeVideoGeneration
	case "build", "app":
		m = ModeAppBuilder
	}
	if !m.IsValid() {
		return "", fmt.Errorf("invalid mode %q: must be one of %v", s, AllModes())
	}
	return m, nil
}

// RequiredCapability is the capability a selected model must carry in mode m.
func (m Mode) RequiredCapability() Capability {
	switch m {
	case ModeImageGeneration:
		return CapabilityImage
	case ModeVideoGeneration:
		return CapabilityVideo
	default:
		return CapabilityChat
	}
}

// Task is a shortcut that switches to a mode with a fixed model.
type Task struct {
	ID               string
	Name             string
	Description      string
	RecommendedModel string
	TargetMode       Mode
	Premium          bool
}

func defaultTasks() []*Task {
	return []*Task{
		{
			ID:               "app_builder",
			Name:             "Build App",
			Description:      "Generate a web application from a prompt.",
			RecommendedModel: ModelCopilot,
			TargetMode:       ModeAppBuilder,
		},
		{
			ID:               "coding",
			Name:             "Coding",
			Description:      "Generate code, debug, or ask dev questions.",
			RecommendedModel: ModelCopilot,
			TargetMode:       ModeChat,
		},
		{
			ID:               "writing",
			Name:             "Writing",
			Description:      "Draft emails, create stories, or write content.",
			RecommendedModel: ModelChatGPT,
			TargetMode:       ModeChat,
		},
		{
			ID:               "research",
			Name:             "Research",
			Description:      "Get web-sourced summaries on any topic.",
			RecommendedModel: ModelPerplexity,
			TargetMode:       ModeChat,
		},
		{
			ID:               "reasoning",
			Name:             "Reasoning",
			Description:      "Analyze documents or solve complex problems.",
			RecommendedModel: ModelClaude,
			TargetMode:       ModeChat,
		},
		{
			ID:               "image_enhance",
			Name:             "Image Enhance",
			Description:      "Upscale and enhance your photos for free.",
			RecommendedModel: ModelRemini,
			TargetMode:       ModeImageGeneration,
		},
		{
			ID:               "video_creation",
			Name:             "Video Creation",
			Description:      "Generate short video clips for free.",
			RecommendedModel: ModelVeer,
			TargetMode:       ModeVideoGeneration,
		},
		{
			ID:               "video_enhance",
			Name:             "Video Enhance",
			Description:      "Upscale and improve your video clips for free.",
			RecommendedModel: ModelVideoEnhance,
			TargetMode:       ModeVideoGeneration,
		},
		{
			ID:               "image_studio",
			Name:             "Image Studio (PRO)",
			Description:      "Create and edit professional-grade images.",
			RecommendedModel: ModelImagen,
			TargetMode:       ModeImageGeneration,
			Premium:          true,
		},
		{
			ID:               "video_generation",
			Name:             "Video Generation (PRO)",
			Description:      "Generate cinematic videos from text or images.",
			RecommendedModel: ModelVeo,
			TargetMode:       ModeVideoGeneration,
			Premium:          true,
		},
	}
}
