package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/manash/polychat/pkg/models"
)

type modeRequest struct {
	Mode string `json:"mode"`
	Task string `json:"task,omitempty"`
}

// SetMode switches mode, or launches a task when one is named.
// PUT /api/mode
func (h *Handler) SetMode(c echo.Context) error {
	var req modeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()

	if req.Task != "" {
		if err := h.engine.LaunchTask(ctx, req.Task); err != nil {
			return h.fail(c, err)
		}
		return c.JSON(http.StatusOK, h.engine.Snapshot())
	}
	if req.Mode == "" {
		return badRequest(c, "mode or task is required")
	}

	m, err := models.ParseMode(strings.ToLower(req.Mode))
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.engine.SetMode(ctx, m); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.engine.Snapshot())
}

type selectRequest struct {
	IDs    []string `json:"ids,omitempty"`
	Toggle string   `json:"toggle,omitempty"`
}

// SelectModels replaces the selection, or toggles a single model.
// PUT /api/models
func (h *Handler) SelectModels(c echo.Context) error {
	var req selectRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	var err error
	switch {
	case req.Toggle != "":
		err = h.engine.ToggleModel(req.Toggle)
	case len(req.IDs) > 0:
		err = h.engine.SelectModels(req.IDs)
	default:
		return badRequest(c, "ids or toggle is required")
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.engine.Snapshot())
}

// SetConfig merges the fields present in the body into the current
// generation config.
// PUT /api/config
func (h *Handler) SetConfig(c echo.Context) error {
	cfg := h.engine.Snapshot().Config
	if err := c.Bind(&cfg); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.engine.SetConfig(cfg); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

type modelInfo struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Provider     models.ProviderType `json:"provider"`
	Capabilities []models.Capability `json:"capabilities"`
	Premium      bool                `json:"premium,omitempty"`
}

type taskInfo struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Description      string      `json:"description"`
	RecommendedModel string      `json:"recommended_model"`
	TargetMode       models.Mode `json:"target_mode"`
	Premium          bool        `json:"premium,omitempty"`
}

// ListModels returns the catalog and the task shortcuts.
// GET /api/models
func (h *Handler) ListModels(c echo.Context) error {
	reg := h.engine.Registry()

	ms := make([]modelInfo, 0, len(reg.List()))
	for _, m := range reg.List() {
		ms = append(ms, modelInfo{
			ID:           m.ID,
			Name:         m.Name,
			Description:  m.Description,
			Provider:     m.Provider,
			Capabilities: m.Capabilities,
			Premium:      m.Premium,
		})
	}
	tasks := make([]taskInfo, 0, len(reg.Tasks()))
	for _, t := range reg.Tasks() {
		tasks = append(tasks, taskInfo{
			ID:               t.ID,
			Name:             t.Name,
			Description:      t.Description,
			RecommendedModel: t.RecommendedModel,
			TargetMode:       t.TargetMode,
			Premium:          t.Premium,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"models": ms, "tasks": tasks})
}

type sessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Active       bool      `json:"active,omitempty"`
}

// ListSessions lists the signed-in user's chats, newest first.
// GET /api/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	activeID := h.engine.Snapshot().ActiveSessionID
	sessions := h.engine.Sessions().Sessions()

	out := make([]sessionSummary, len(sessions))
	for i, s := range sessions {
		out[i] = sessionSummary{
			ID:           s.ID,
			Title:        s.Title,
			MessageCount: len(s.Messages),
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
			Active:       s.ID == activeID,
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": out})
}

// GetSession returns one chat with its messages.
// GET /api/sessions/:id
func (h *Handler) GetSession(c echo.Context) error {
	s, ok := h.engine.Sessions().Session(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	}
	return c.JSON(http.StatusOK, s)
}

// SelectSession makes a chat active and switches to chat mode.
// POST /api/sessions/:id/select
func (h *Handler) SelectSession(c echo.Context) error {
	if err := h.engine.SelectSession(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.engine.Snapshot())
}

// NewSession detaches the active chat.
// POST /api/sessions/new
func (h *Handler) NewSession(c echo.Context) error {
	if err := h.engine.NewSession(c.Request().Context()); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.engine.Snapshot())
}

type renameRequest struct {
	Title string `json:"title"`
}

// RenameSession changes a chat's title.
// PATCH /api/sessions/:id
func (h *Handler) RenameSession(c echo.Context) error {
	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.Title) == "" {
		return badRequest(c, "title is required")
	}
	id := c.Param("id")
	if err := h.engine.Sessions().Rename(c.Request().Context(), id, req.Title); err != nil {
		return h.fail(c, err)
	}
	s, _ := h.engine.Sessions().Session(id)
	return c.JSON(http.StatusOK, s)
}

// DeleteSession removes a chat.
// DELETE /api/sessions/:id
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.engine.DeleteSession(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
