// Package display previews generated images inline on terminals that speak
// the kitty graphics protocol.
package display

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/manash/polychat/pkg/models"
)

var ErrUnsupportedTerminal = errors.New("terminal cannot display images")

type Previewer struct {
	out     io.Writer
	enabled bool
}

// New returns a previewer writing to out. It is enabled only when getenv
// describes a terminal with kitty graphics support.
func New(out io.Writer, getenv func(string) string) *Previewer {
	return &Previewer{out: out, enabled: Supported(getenv)}
}

func (p *Previewer) Enabled() bool {
	return p != nil && p.enabled
}

// Show draws img followed by a newline. Formats other than PNG are
// re-encoded first.
func (p *Previewer) Show(img *models.InputMedia) error {
	if !p.Enabled() {
		return ErrUnsupportedTerminal
	}
	if img == nil || len(img.Data) == 0 {
		return errors.New("image has no data")
	}

	data, err := asPNG(img)
	if err != nil {
		return err
	}
	if err := writeKitty(p.out, data); err != nil {
		return fmt.Errorf("failed to draw image: %w", err)
	}
	_, err = fmt.Fprintln(p.out)
	return err
}

func asPNG(img *models.InputMedia) ([]byte, error) {
	if img.MIMEType == "image/png" {
		return img.Data, nil
	}
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("cannot preview %s: %w", img.MIMEType, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

var supportedPrograms = []string{"kitty", "ghostty", "iterm.app", "wezterm"}

func Supported(getenv func(string) string) bool {
	program := strings.ToLower(getenv("TERM_PROGRAM"))
	for _, p := range supportedPrograms {
		if program == p {
			return true
		}
	}
	if getenv("KITTY_WINDOW_ID") != "" || getenv("ITERM_SESSION_ID") != "" {
		return true
	}
	term := strings.ToLower(getenv("TERM"))
	return strings.Contains(term, "kitty") || strings.Contains(term, "ghostty")
}
