package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/manash/polychat/pkg/models"
)

// ParseWebApp extracts the {html, css, javascript} object from a model
// reply. Markdown fences and text around the object are ignored.
func ParseWebApp(reply string) (*models.WebAppCode, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedApp)
	}

	var app models.WebAppCode
	if err := json.Unmarshal([]byte(reply[start:end+1]), &app); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedApp, err)
	}
	if strings.TrimSpace(app.HTML) == "" {
		return nil, fmt.Errorf("%w: html is empty", ErrMalformedApp)
	}
	return &app, nil
}
