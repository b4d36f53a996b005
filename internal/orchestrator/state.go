package orchestrator

import (
	"slices"

	"github.com/manash/polychat/pkg/models"
)

// Kind names a dispatch slot. Each kind allows one request in flight.
type Kind string

const (
	KindChat  Kind = "chat"
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindBuild Kind = "build"
)

// State is everything a view needs to render the engine. Snapshots are
// copies; mutating one has no effect on the engine.
type State struct {
	UserID          string                    `json:"user_id,omitempty"`
	Mode            models.Mode               `json:"mode"`
	Selected        []*models.Model           `json:"-"`
	SelectedIDs     []string                  `json:"selected"`
	Config          models.GenerationConfig   `json:"config"`
	Busy            map[Kind]bool             `json:"busy"`
	LastError       string                    `json:"last_error,omitempty"`
	ActiveSessionID string                    `json:"active_session_id,omitempty"`
	InputMedia      *models.InputMedia        `json:"input_media,omitempty"`
	GeneratedImage  *models.InputMedia        `json:"generated_image,omitempty"`
	GeneratedVideo  *models.VideoResource     `json:"generated_video,omitempty"`
	GeneratedApp    *models.WebAppCode        `json:"generated_app,omitempty"`
	Progress        string                    `json:"progress,omitempty"`
	ComparisonID    uint64                    `json:"comparison_id,omitempty"`
	Comparison      []models.ComparisonResult `json:"comparison,omitempty"`
}

func (s State) IsBusy(k Kind) bool {
	return s.Busy[k]
}

// Model returns the first selected model, or nil.
func (s State) Model() *models.Model {
	if len(s.Selected) == 0 {
		return nil
	}
	return s.Selected[0]
}

func (s State) clone() State {
	c := s
	c.Selected = slices.Clone(s.Selected)
	c.SelectedIDs = make([]string, len(s.Selected))
	for i, m := range s.Selected {
		c.SelectedIDs[i] = m.ID
	}
	c.Busy = make(map[Kind]bool, len(s.Busy))
	for k, v := range s.Busy {
		if v {
			c.Busy[k] = true
		}
	}
	c.Comparison = slices.Clone(s.Comparison)
	return c
}

// clearTransient drops every mode-specific output and the last error.
func (s *State) clearTransient() {
	s.InputMedia = nil
	s.GeneratedImage = nil
	s.GeneratedVideo = nil
	s.GeneratedApp = nil
	s.Progress = ""
	s.LastError = ""
	s.Comparison = nil
}
