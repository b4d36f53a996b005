package display

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/manash/polychat/pkg/models"
)

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestSupported(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"kitty program", map[string]string{"TERM_PROGRAM": "kitty"}, true},
		{"iterm case-insensitive", map[string]string{"TERM_PROGRAM": "iTerm.app"}, true},
		{"kitty window", map[string]string{"KITTY_WINDOW_ID": "1"}, true},
		{"iterm session", map[string]string{"ITERM_SESSION_ID": "w0t0p0"}, true},
		{"ghostty term", map[string]string{"TERM": "xterm-ghostty"}, true},
		{"plain xterm", map[string]string{"TERM": "xterm-256color"}, false},
		{"nothing", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Supported(envOf(tt.env)); got != tt.want {
				t.Errorf("Supported() = %v, want %v", got, tt.want)
			}
		})
	}
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(1, 2))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(rng.UintN(256)), G: uint8(rng.UintN(256)), B: uint8(rng.UintN(256)), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestShow_SmallPNG(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, envOf(map[string]string{"TERM_PROGRAM": "kitty"}))

	data := encodePNG(t, 2, 2)
	if err := p.Show(&models.InputMedia{Data: data, MIMEType: "image/png"}); err != nil {
		t.Fatalf("Show() error: %v", err)
	}

	out := buf.String()
	want := escapeStart + "a=T,f=100,q=2,m=0;" + base64.StdEncoding.EncodeToString(data) + escapeEnd + "\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestShow_ChunksLargePayload(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, envOf(map[string]string{"KITTY_WINDOW_ID": "3"}))

	data := encodePNG(t, 128, 128)
	if err := p.Show(&models.InputMedia{Data: data, MIMEType: "image/png"}); err != nil {
		t.Fatalf("Show() error: %v", err)
	}

	chunks := strings.Split(strings.TrimSuffix(buf.String(), "\n"), escapeEnd)
	chunks = chunks[:len(chunks)-1]
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	var payload strings.Builder
	for i, c := range chunks {
		if !strings.HasPrefix(c, escapeStart) {
			t.Fatalf("chunk %d missing escape start", i)
		}
		params, body, _ := strings.Cut(strings.TrimPrefix(c, escapeStart), ";")
		switch {
		case i == 0:
			if params != "a=T,f=100,q=2,m=1" {
				t.Errorf("first chunk params = %q", params)
			}
		case i == len(chunks)-1:
			if params != "m=0" {
				t.Errorf("last chunk params = %q", params)
			}
		default:
			if params != "m=1" {
				t.Errorf("chunk %d params = %q", i, params)
			}
		}
		if len(body) > chunkSize {
			t.Errorf("chunk %d has %d bytes", i, len(body))
		}
		payload.WriteString(body)
	}

	if payload.String() != base64.StdEncoding.EncodeToString(data) {
		t.Error("reassembled payload does not match the image")
	}
}

func TestShow_ReencodesJPEG(t *testing.T) {
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, image.NewGray(image.Rect(0, 0, 4, 4)), nil); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	p := New(&buf, envOf(map[string]string{"TERM_PROGRAM": "WezTerm"}))
	if err := p.Show(&models.InputMedia{Data: jpg.Bytes(), MIMEType: "image/jpeg"}); err != nil {
		t.Fatalf("Show() error: %v", err)
	}

	_, rest, _ := strings.Cut(buf.String(), ";")
	encoded, _, _ := strings.Cut(rest, escapeEnd)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(raw)); err != nil {
		t.Errorf("payload is not a PNG: %v", err)
	}
}

func TestShow_Errors(t *testing.T) {
	var buf bytes.Buffer
	off := New(&buf, envOf(nil))
	if off.Enabled() {
		t.Fatal("previewer should be disabled")
	}
	if err := off.Show(&models.InputMedia{Data: []byte{1}, MIMEType: "image/png"}); !errors.Is(err, ErrUnsupportedTerminal) {
		t.Errorf("error = %v, want ErrUnsupportedTerminal", err)
	}

	on := New(&buf, envOf(map[string]string{"TERM_PROGRAM": "kitty"}))
	if err := on.Show(nil); err == nil {
		t.Error("expected error for nil image")
	}
	if err := on.Show(&models.InputMedia{Data: []byte("not an image"), MIMEType: "image/webp"}); err == nil {
		t.Error("expected error for undecodable image")
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written on error, got %q", buf.String())
	}

	var nilPreviewer *Previewer
	if nilPreviewer.Enabled() {
		t.Error("nil previewer should be disabled")
	}
}
