// Package media moves generated artifacts and input images between the
// engine and the filesystem.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/manash/polychat/internal/security"
	"github.com/manash/polychat/pkg/models"
)

const maxInputBytes = 20 << 20

var ErrNoData = errors.New("no media data available")

// Saver writes artifacts into a directory. Explicit names are checked with
// security.ValidateSavePath; otherwise a name is derived from the prompt.
type Saver struct {
	dir        string
	httpClient *http.Client
	policy     *security.URLPolicy
	now        func() time.Time
}

type Option func(*Saver)

// WithURLPolicy sets the check applied before downloading a video URI. A nil
// policy disables the check.
func WithURLPolicy(p *security.URLPolicy) Option {
	return func(s *Saver) { s.policy = p }
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Saver) { s.httpClient = c }
}

func NewSaver(dir string, opts ...Option) *Saver {
	if dir == "" {
		dir = "."
	}
	s := &Saver{
		dir:        dir,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		policy:     security.NewURLPolicy(false),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Saver) Dir() string {
	return s.dir
}

func (s *Saver) SaveImage(img *models.InputMedia, prompt, name string) (string, error) {
	if img == nil || len(img.Data) == 0 {
		return "", ErrNoData
	}
	return s.write("image", prompt, name, img.Extension(), img.Data)
}

// SaveVideo writes the video bytes, downloading them first when the backend
// only returned a URI.
func (s *Saver) SaveVideo(ctx context.Context, v *models.VideoResource, prompt, name string) (string, error) {
	if v == nil {
		return "", ErrNoData
	}
	data := v.Data
	if len(data) == 0 {
		if v.URI == "" {
			return "", ErrNoData
		}
		var err error
		if data, err = s.download(ctx, v.URI); err != nil {
			return "", fmt.Errorf("failed to download video: %w", err)
		}
	}
	return s.write("video", prompt, name, v.Extension(), data)
}

// SaveApp writes the app as one self-contained HTML page.
func (s *Saver) SaveApp(app *models.WebAppCode, prompt, name string) (string, error) {
	if app == nil {
		return "", ErrNoData
	}
	return s.write("app", prompt, name, "html", []byte(app.Document()))
}

func (s *Saver) write(kind, prompt, name, ext string, data []byte) (string, error) {
	if name == "" {
		name = security.PromptFilename(kind, prompt, ext, s.now())
	} else if err := security.ValidateSavePath(name); err != nil {
		return "", fmt.Errorf("invalid output path %q: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}

func (s *Saver) download(ctx context.Context, url string) ([]byte, error) {
	if s.policy != nil {
		if err := s.policy.Validate(url); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// LoadInputMedia reads an image file for editing or as a video seed.
func LoadInputMedia(path string) (*models.InputMedia, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxInputBytes {
		return nil, fmt.Errorf("%w: %s is larger than %d MB", models.ErrInvalidMedia, path, maxInputBytes>>20)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	in := models.NewInputMedia(data, mimeType)
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}
