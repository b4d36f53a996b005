package httpapi

import (
	"encoding/base64"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/manash/polychat/internal/orchestrator"
	"github.com/manash/polychat/pkg/models"
)

type promptRequest struct {
	Prompt string `json:"prompt"`
}

// ChatResponse carries the assistant message. On a failed dispatch the
// message is the error entry that was written to the transcript.
type ChatResponse struct {
	Message   models.Message `json:"message"`
	SessionID string         `json:"session_id"`
	Error     string         `json:"error,omitempty"`
}

// Chat sends a message in chat mode.
// POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	var req promptRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	msg, err := h.engine.SendMessage(c.Request().Context(), req.Prompt)
	if err != nil && msg.ID == "" {
		return h.fail(c, err)
	}
	resp := ChatResponse{Message: msg, SessionID: h.engine.Snapshot().ActiveSessionID}
	if err != nil {
		resp.Error = orchestrator.ChatFailure
		return c.JSON(http.StatusBadGateway, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

type compareRequest struct {
	Prompt string   `json:"prompt"`
	Models []string `json:"models,omitempty"`
}

// Compare fans a prompt out to the selected models, or to the models named
// in the request.
// POST /api/compare
func (h *Handler) Compare(c echo.Context) error {
	var req compareRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	var ms []*models.Model
	if len(req.Models) > 0 {
		resolved, err := h.engine.Registry().Resolve(req.Models)
		if err != nil {
			return h.fail(c, err)
		}
		ms = resolved
	}

	results, err := h.engine.Compare(c.Request().Context(), req.Prompt, ms)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

type imageRequest struct {
	Prompt   string `json:"prompt"`
	Image    string `json:"image,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

type mediaResponse struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Image generates an image, or edits one. The source image comes from the
// request or from media attached earlier with PUT /api/input.
// POST /api/image
func (h *Handler) Image(c echo.Context) error {
	var req imageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Image != "" {
		if err := h.attach(req.Image, req.MIMEType); err != nil {
			return h.fail(c, err)
		}
	}

	img, err := h.engine.GenerateImage(c.Request().Context(), req.Prompt)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, mediaResponse{
		MIMEType: img.MIMEType,
		Data:     base64.StdEncoding.EncodeToString(img.Data),
	})
}

// Video generates a clip, seeded by an image when one is given or attached.
// POST /api/video
func (h *Handler) Video(c echo.Context) error {
	var req imageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Image != "" {
		if err := h.attach(req.Image, req.MIMEType); err != nil {
			return h.fail(c, err)
		}
	}

	video, err := h.engine.GenerateVideo(c.Request().Context(), req.Prompt)
	if err != nil {
		return h.fail(c, err)
	}
	resp := mediaResponse{MIMEType: video.MIMEType, URI: video.URI}
	if len(video.Data) > 0 {
		resp.Data = base64.StdEncoding.EncodeToString(video.Data)
	}
	return c.JSON(http.StatusOK, resp)
}

type buildResponse struct {
	*models.WebAppCode
	Document string `json:"document"`
}

// Build generates a web app.
// POST /api/build
func (h *Handler) Build(c echo.Context) error {
	var req promptRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	app, err := h.engine.BuildApp(c.Request().Context(), req.Prompt)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, buildResponse{WebAppCode: app, Document: app.Document()})
}

// SetInput attaches an image for the next edit or video.
// PUT /api/input
func (h *Handler) SetInput(c echo.Context) error {
	var req imageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Image == "" {
		return badRequest(c, "image is required")
	}
	if err := h.attach(req.Image, req.MIMEType); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.engine.Snapshot())
}

// ClearInput drops the attached image.
// DELETE /api/input
func (h *Handler) ClearInput(c echo.Context) error {
	h.engine.ClearInputMedia()
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) attach(encoded, mimeType string) error {
	in, err := models.DecodeInputMedia(encoded, mimeType)
	if err != nil {
		return err
	}
	return h.engine.SetInputMedia(in)
}
