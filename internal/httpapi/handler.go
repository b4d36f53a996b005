// Package httpapi exposes the orchestration engine as a local JSON API.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/manash/polychat/internal/mode"
	"github.com/manash/polychat/internal/orchestrator"
	"github.com/manash/polychat/internal/provider"
	"github.com/manash/polychat/internal/session"
	"github.com/manash/polychat/pkg/models"
)

type Handler struct {
	engine *orchestrator.Engine
	logger *slog.Logger
}

func NewHandler(engine *orchestrator.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// NewServer returns an echo instance with request logging, panic recovery
// and every route registered.
func NewServer(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				h.logger.Warn("request failed", append(attrs, "err", v.Error)...)
				return nil
			}
			h.logger.Debug("request", attrs...)
			return nil
		},
	}))

	h.RegisterRoutes(e)
	return e
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	api := e.Group("/api")
	api.GET("/state", h.GetState)

	api.POST("/chat", h.Chat)
	api.POST("/compare", h.Compare)
	api.POST("/image", h.Image)
	api.POST("/video", h.Video)
	api.POST("/build", h.Build)

	api.PUT("/mode", h.SetMode)
	api.PUT("/models", h.SelectModels)
	api.PUT("/config", h.SetConfig)
	api.PUT("/input", h.SetInput)
	api.DELETE("/input", h.ClearInput)

	api.GET("/models", h.ListModels)
	api.GET("/sessions", h.ListSessions)
	api.POST("/sessions/new", h.NewSession)
	api.GET("/sessions/:id", h.GetSession)
	api.PATCH("/sessions/:id", h.RenameSession)
	api.DELETE("/sessions/:id", h.DeleteSession)
	api.POST("/sessions/:id/select", h.SelectSession)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetState returns the engine snapshot.
// GET /api/state
func (h *Handler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Snapshot())
}

type errorResponse struct {
	Error string `json:"error"`
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

// fail writes err with the status that matches its kind.
func (h *Handler) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request error", "path", c.Path(), "err", err)
	}
	return c.JSON(status, errorResponse{Error: provider.Describe(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrNoActiveUser):
		return http.StatusUnauthorized
	case errors.Is(err, mode.ErrPremiumRequired):
		return http.StatusForbidden
	case errors.Is(err, models.ErrModelNotFound),
		errors.Is(err, models.ErrTaskNotFound),
		errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrBusy),
		errors.Is(err, orchestrator.ErrWrongMode):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoUser):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrEmptyPrompt),
		errors.Is(err, models.ErrInvalidMedia),
		errors.Is(err, models.ErrNoModelsSelected),
		errors.Is(err, models.ErrUnknownConfigField),
		errors.Is(err, models.ErrInvalidTemperature),
		errors.Is(err, models.ErrInvalidTopP),
		errors.Is(err, models.ErrInvalidTopK),
		errors.Is(err, models.ErrInvalidMaxOutputTokens),
		errors.Is(err, provider.ErrInvalidInput),
		errors.Is(err, provider.ErrUnsupportedModel),
		errors.Is(err, mode.ErrInvalidMode),
		errors.Is(err, mode.ErrSingleModelMode),
		errors.Is(err, mode.ErrCapabilityMismatch),
		errors.Is(err, mode.ErrDuplicateModel),
		errors.Is(err, mode.ErrTaskModeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrMalformedApp),
		errors.Is(err, provider.ErrBackend):
		return http.StatusBadGateway
	case errors.Is(err, provider.ErrTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
