package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/manash/polychat/internal/provider"
	"github.com/manash/polychat/pkg/models"
)

func videoModel() *models.Model {
	return &models.Model{
		ID:           "sora",
		Name:         "Sora",
		Provider:     models.ProviderOpenAI,
		BackendName:  "sora-2",
		Capabilities: []models.Capability{models.CapabilityVideo},
	}
}

func fastPolling(t *testing.T) {
	t.Helper()
	old := defaultPollInterval
	defaultPollInterval = time.Millisecond
	t.Cleanup(func() { defaultPollInterval = old })
}

func TestProvider_GenerateVideo_Success(t *testing.T) {
	fastPolling(t)
	requestCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/videos":
			if r.Header.Get("Authorization") != "Bearer test-key" {
				t.Errorf("wrong authorization header")
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("ParseMultipartForm() error = %v", err)
				return
			}
			if r.FormValue("model") != "sora-2" || r.FormValue("prompt") != "a wave" {
				t.Errorf("unexpected form: %v", r.MultipartForm.Value)
			}
			json.NewEncoder(w).Encode(videoJobResponse{ID: "video_123", Status: "queued"})

		case r.Method == http.MethodGet && r.URL.Path == "/videos/video_123":
			requestCount++
			resp := map[string]any{"id": "video_123", "status": "in_progress", "progress": 50}
			if requestCount == 1 {
				resp["status"] = "queued"
			}
			if requestCount >= 3 {
				resp["status"] = "completed"
				resp["progress"] = "100"
			}
			json.NewEncoder(w).Encode(resp)

		case r.Method == http.MethodGet && r.URL.Path == "/videos/video_123/content":
			w.Header().Set("Content-Type", "video/mp4")
			w.Write([]byte("fake-video-data"))

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	var updates []string
	v, err := testProvider(server.URL).GenerateVideo(context.Background(), "a wave", nil, videoModel(), func(s string) {
		updates = append(updates, s)
	})
	if err != nil {
		t.Fatalf("GenerateVideo() error = %v", err)
	}
	if string(v.Data) != "fake-video-data" || v.MIMEType != "video/mp4" {
		t.Errorf("GenerateVideo() = %+v", v)
	}

	want := []string{"Starting video generation...", "Waiting in queue...", "Rendering video (50%)...", "Downloading video..."}
	if strings.Join(updates, "|") != strings.Join(want, "|") {
		t.Errorf("progress = %v, want %v", updates, want)
	}
}

func TestProvider_GenerateVideo_Failed(t *testing.T) {
	fastPolling(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(videoJobResponse{ID: "video_9", Status: "queued"})
		default:
			json.NewEncoder(w).Encode(videoJobResponse{ID: "video_9", Status: "failed", Error: &apiError{Message: "content policy"}})
		}
	}))
	defer server.Close()

	_, err := testProvider(server.URL).GenerateVideo(context.Background(), "x", nil, videoModel(), func(string) {})
	if !errors.Is(err, provider.ErrBackend) || provider.Describe(err) != "content policy" {
		t.Errorf("GenerateVideo() error = %v", err)
	}
}

func TestProvider_GenerateVideo_CreateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	_, err := testProvider(server.URL).GenerateVideo(context.Background(), "x", nil, videoModel(), func(string) {})
	if provider.Describe(err) != "rate limited" {
		t.Errorf("GenerateVideo() error = %v", err)
	}
}

func TestProvider_GenerateVideo_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(videoJobResponse{ID: "video_1", Status: "queued"})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := testProvider(server.URL).GenerateVideo(ctx, "x", nil, videoModel(), func(s string) {
		if s == "Starting video generation..." {
			return
		}
		cancel()
	})
	if err == nil {
		t.Fatal("GenerateVideo() error = nil, want cancellation")
	}
	cancel()
}

func TestVideoJobResponse_Progress(t *testing.T) {
	tests := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{`{"progress":42}`, 42, true},
		{`{"progress":"17"}`, 17, true},
		{`{"progress":"soon"}`, 0, false},
		{`{}`, 0, false},
	}
	for _, tt := range tests {
		var j videoJobResponse
		if err := json.Unmarshal([]byte(tt.raw), &j); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.raw, err)
		}
		got, ok := j.progress()
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("progress(%s) = %d, %v; want %d, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}
