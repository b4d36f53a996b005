package security

import (
	"errors"
	"testing"
	"time"
)

func TestValidateSavePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"simple filename", "video.mp4", nil},
		{"subdirectory", "output/app.html", nil},
		{"parent traversal", "../image.png", ErrPathTraversal},
		{"traversal in middle", "foo/../../../etc/passwd", ErrPathTraversal},
		{"absolute path", "/etc/passwd", ErrAbsolutePath},
		{"reserved CON", "CON.txt", ErrReservedName},
		{"reserved nul", "nul", ErrReservedName},
		{"reserved LPT1", "out/lpt1.mp4", ErrReservedName},
		{"leading hyphen", "-rf.png", ErrLeadingHyphen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSavePath(tt.path)
			if tt.wantErr == nil && err != nil {
				t.Errorf("ValidateSavePath(%q) error = %v, want nil", tt.path, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSavePath(%q) error = %v, want %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"image.png", "image.png"},
		{"foo/bar.png", "foo-bar.png"},
		{"foo\\bar.png", "foo-bar.png"},
		{"..hidden.png", "hidden.png"},
		{"--flag.png", "flag.png"},
		{"file.png...", "file.png"},
		{"file<name>:with*bad?chars.png", "filename-withbadchars.png"},
		{"CON.txt", "CON.txt_"},
		{"...", "file"},
	}

	for _, tt := range tests {
		if got := SanitizeFilename(tt.input); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPromptFilename(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		kind, prompt, ext string
		want              string
	}{
		{"image", "A cat, wearing a HAT!", "png", "image-a-cat-wearing-a-hat-20250314-092653.png"},
		{"video", "one two three four five six seven eight", "mp4", "video-one-two-three-four-five-six-20250314-092653.mp4"},
		{"app", "   ", "html", "app-20250314-092653.html"},
		{"image", "../../etc/passwd", "png", "image-etcpasswd-20250314-092653.png"},
	}
	for _, tt := range tests {
		if got := PromptFilename(tt.kind, tt.prompt, tt.ext, now); got != tt.want {
			t.Errorf("PromptFilename(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}
