package models

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// InputMedia is an encoded image supplied by the user for editing or as a
// video seed. Generated images use the same shape.
type InputMedia struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

func NewInputMedia(data []byte, mimeType string) *InputMedia {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &InputMedia{Data: data, MIMEType: mimeType}
}

// DecodeInputMedia accepts raw base64 or a data URL ("data:image/png;base64,...").
func DecodeInputMedia(encoded, mimeType string) (*InputMedia, error) {
	if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, fmt.Errorf("%w: malformed data URL", ErrInvalidMedia)
		}
		mimeType = strings.TrimSuffix(header, ";base64")
		encoded = payload
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMedia, err)
	}
	m := NewInputMedia(data, mimeType)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *InputMedia) Validate() error {
	if m == nil || len(m.Data) == 0 {
		return fmt.Errorf("%w: no image data", ErrInvalidMedia)
	}
	if !strings.HasPrefix(m.MIMEType, "image/") {
		return fmt.Errorf("%w: unsupported media type %q", ErrInvalidMedia, m.MIMEType)
	}
	return nil
}

func (m *InputMedia) Base64() string {
	return base64.StdEncoding.EncodeToString(m.Data)
}

func (m *InputMedia) DataURL() string {
	return "data:" + m.MIMEType + ";base64," + m.Base64()
}

// Extension returns a file extension for the media type, without the dot.
func (m *InputMedia) Extension() string {
	return extensionFor(m.MIMEType, "png")
}

// VideoResource is the result of a video generation. Backends return either
// the bytes or a URI to fetch them from.
type VideoResource struct {
	Data     []byte `json:"-"`
	URI      string `json:"uri,omitempty"`
	MIMEType string `json:"mime_type"`
}

func (v *VideoResource) Extension() string {
	return extensionFor(v.MIMEType, "mp4")
}

// WebAppCode is the artifact produced in app-builder mode.
type WebAppCode struct {
	HTML       string `json:"html"`
	CSS        string `json:"css"`
	JavaScript string `json:"javascript"`
}

// Document inlines the stylesheet and script into a single HTML page.
func (w *WebAppCode) Document() string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<style>\n")
	b.WriteString(w.CSS)
	b.WriteString("\n</style>\n</head>\n<body>\n")
	b.WriteString(w.HTML)
	b.WriteString("\n<script>\n")
	b.WriteString(w.JavaScript)
	b.WriteString("\n</script>\n</body>\n</html>\n")
	return b.String()
}

func extensionFor(mimeType, fallback string) string {
	switch mimeType {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	}
	return fallback
}
