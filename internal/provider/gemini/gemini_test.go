package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/manash/polychat/internal/provider"
	"github.com/manash/polychat/internal/security"
	"github.com/manash/polychat/pkg/models"
)

type fakeModels struct {
	contentModel string
	contentCfg   *genai.GenerateContentConfig
	contentResp  *genai.GenerateContentResponse
	imagesResp   *genai.GenerateImagesResponse
	videosOp     *genai.GenerateVideosOperation
	videoSeed    *genai.Image
	err          error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.contentModel = model
	f.contentCfg = config
	return f.contentResp, f.err
}

func (f *fakeModels) GenerateImages(_ context.Context, _ string, _ string, _ *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	return f.imagesResp, f.err
}

func (f *fakeModels) GenerateVideos(_ context.Context, _ string, _ string, image *genai.Image, _ *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	f.videoSeed = image
	return f.videosOp, f.err
}

// fakeOperations completes the operation after doneAfter polls.
type fakeOperations struct {
	polls     int
	doneAfter int
	final     *genai.GenerateVideosOperation
}

func (f *fakeOperations) GetVideosOperation(_ context.Context, op *genai.GenerateVideosOperation, _ *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error) {
	f.polls++
	if f.polls >= f.doneAfter {
		return f.final, nil
	}
	return op, nil
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(s, genai.RoleModel)}},
	}
}

func testProvider(m modelsAPI, ops operationsAPI) *Provider {
	p := newProvider("test-key", m, ops, nil)
	p.pollInterval = time.Millisecond
	return p
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(context.Background(), &provider.Config{}, nil); !errors.Is(err, provider.ErrAPIKeyRequired) {
		t.Errorf("New() error = %v, want ErrAPIKeyRequired", err)
	}
}

func TestProvider_GenerateText(t *testing.T) {
	fm := &fakeModels{contentResp: textResponse("Entanglement links two particles.")}
	p := testProvider(fm, nil)
	m := models.DefaultRegistry().MustGet(models.ModelGemini)

	got, err := p.GenerateText(context.Background(), "explain entanglement", m, models.DefaultGenerationConfig())
	if err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if got != "Entanglement links two particles." {
		t.Errorf("GenerateText() = %q", got)
	}
	if fm.contentModel != m.BackendName {
		t.Errorf("backend model = %q, want %q", fm.contentModel, m.BackendName)
	}
	if fm.contentCfg.MaxOutputTokens != 2048 || *fm.contentCfg.Temperature != float32(0.7) {
		t.Errorf("generation config not forwarded: %+v", fm.contentCfg)
	}
}

func TestProvider_GenerateText_Empty(t *testing.T) {
	p := testProvider(&fakeModels{contentResp: textResponse("  ")}, nil)
	m := models.DefaultRegistry().MustGet(models.ModelGemini)

	if _, err := p.GenerateText(context.Background(), "x", m, models.DefaultGenerationConfig()); !errors.Is(err, provider.ErrBackend) {
		t.Errorf("GenerateText() error = %v, want ErrBackend", err)
	}
}

func TestProvider_GenerateText_APIError(t *testing.T) {
	p := testProvider(&fakeModels{err: genai.APIError{Code: 429, Message: "Resource exhausted"}}, nil)
	m := models.DefaultRegistry().MustGet(models.ModelGemini)

	_, err := p.GenerateText(context.Background(), "x", m, models.DefaultGenerationConfig())
	if !errors.Is(err, provider.ErrBackend) {
		t.Fatalf("GenerateText() error = %v, want ErrBackend", err)
	}
	if got := provider.Describe(err); got != "Resource exhausted" {
		t.Errorf("Describe() = %q", got)
	}
}

func TestProvider_GenerateImage(t *testing.T) {
	fm := &fakeModels{imagesResp: &genai.GenerateImagesResponse{
		GeneratedImages: []*genai.GeneratedImage{{Image: &genai.Image{ImageBytes: []byte("png"), MIMEType: "image/png"}}},
	}}
	p := testProvider(fm, nil)

	img, err := p.GenerateImage(context.Background(), "a lighthouse", models.DefaultRegistry().MustGet(models.ModelImagen))
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}
	if string(img.Data) != "png" || img.MIMEType != "image/png" {
		t.Errorf("GenerateImage() = %+v", img)
	}

	fm.imagesResp = &genai.GenerateImagesResponse{}
	if _, err := p.GenerateImage(context.Background(), "x", models.DefaultRegistry().MustGet(models.ModelImagen)); !errors.Is(err, provider.ErrBackend) {
		t.Errorf("GenerateImage(no images) error = %v, want ErrBackend", err)
	}
}

func TestProvider_EditImage(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText("here you go"),
			genai.NewPartFromBytes([]byte("edited"), "image/png"),
		}, genai.RoleModel)}},
	}
	fm := &fakeModels{contentResp: resp}
	p := testProvider(fm, nil)
	m := models.DefaultRegistry().MustGet(models.ModelImagen)

	out, err := p.EditImage(context.Background(), "make it blue", &models.InputMedia{Data: []byte("orig"), MIMEType: "image/png"}, m)
	if err != nil {
		t.Fatalf("EditImage() error = %v", err)
	}
	if string(out.Data) != "edited" {
		t.Errorf("EditImage() data = %q", out.Data)
	}
	if fm.contentModel != m.EditBackendName {
		t.Errorf("edit routed to %q, want %q", fm.contentModel, m.EditBackendName)
	}

	fm.contentResp = textResponse("I cannot edit that image")
	if _, err := p.EditImage(context.Background(), "x", &models.InputMedia{Data: []byte("orig"), MIMEType: "image/png"}, m); !errors.Is(err, provider.ErrBackend) {
		t.Errorf("EditImage(text only) error = %v, want ErrBackend", err)
	}
}

func TestProvider_GenerateVideo(t *testing.T) {
	fm := &fakeModels{videosOp: &genai.GenerateVideosOperation{Name: "op-1"}}
	ops := &fakeOperations{doneAfter: 3, final: &genai.GenerateVideosOperation{
		Name: "op-1",
		Done: true,
		Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{VideoBytes: []byte("mp4")}}},
		},
	}}
	p := testProvider(fm, ops)

	var updates []string
	v, err := p.GenerateVideo(context.Background(), "waves at dusk", nil, models.DefaultRegistry().MustGet(models.ModelVeo), func(s string) {
		updates = append(updates, s)
	})
	if err != nil {
		t.Fatalf("GenerateVideo() error = %v", err)
	}
	if string(v.Data) != "mp4" || v.MIMEType != "video/mp4" {
		t.Errorf("GenerateVideo() = %+v", v)
	}
	if ops.polls != 3 {
		t.Errorf("polls = %d, want 3", ops.polls)
	}
	// start + one per poll + download
	if len(updates) != 5 {
		t.Errorf("progress updates = %v", updates)
	}
}

func TestProvider_GenerateVideo_Seeded(t *testing.T) {
	fm := &fakeModels{videosOp: &genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
		GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{VideoBytes: []byte("mp4"), MIMEType: "video/mp4"}}},
	}}}
	p := testProvider(fm, &fakeOperations{})

	_, err := p.GenerateVideo(context.Background(), "", &models.InputMedia{Data: []byte("png"), MIMEType: "image/png"}, models.DefaultRegistry().MustGet(models.ModelVeo), func(string) {})
	if err != nil {
		t.Fatalf("GenerateVideo() error = %v", err)
	}
	if fm.videoSeed == nil || string(fm.videoSeed.ImageBytes) != "png" {
		t.Errorf("seed image not forwarded: %+v", fm.videoSeed)
	}
}

func TestProvider_GenerateVideo_Failed(t *testing.T) {
	fm := &fakeModels{videosOp: &genai.GenerateVideosOperation{}}
	ops := &fakeOperations{doneAfter: 1, final: &genai.GenerateVideosOperation{
		Done:  true,
		Error: map[string]any{"message": "prompt rejected"},
	}}
	p := testProvider(fm, ops)

	_, err := p.GenerateVideo(context.Background(), "x", nil, models.DefaultRegistry().MustGet(models.ModelVeo), func(string) {})
	if !errors.Is(err, provider.ErrBackend) || provider.Describe(err) != "prompt rejected" {
		t.Errorf("GenerateVideo() error = %v", err)
	}
}

func TestProvider_GenerateVideo_Timeout(t *testing.T) {
	fm := &fakeModels{videosOp: &genai.GenerateVideosOperation{}}
	p := testProvider(fm, &fakeOperations{doneAfter: 1000})
	p.maxPolls = 2

	_, err := p.GenerateVideo(context.Background(), "x", nil, models.DefaultRegistry().MustGet(models.ModelVeo), func(string) {})
	if !errors.Is(err, provider.ErrTimeout) {
		t.Errorf("GenerateVideo() error = %v, want ErrTimeout", err)
	}
}

func TestProvider_GenerateVideo_DownloadsURI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("remote-mp4"))
	}))
	defer server.Close()

	fm := &fakeModels{videosOp: &genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
		GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: server.URL + "/files/abc"}}},
	}}}
	p := testProvider(fm, &fakeOperations{})
	p.downloadPolicy = nil

	v, err := p.GenerateVideo(context.Background(), "x", nil, models.DefaultRegistry().MustGet(models.ModelVeo), func(string) {})
	if err != nil {
		t.Fatalf("GenerateVideo() error = %v", err)
	}
	if string(v.Data) != "remote-mp4" {
		t.Errorf("GenerateVideo() data = %q", v.Data)
	}
}

func TestProvider_GenerateVideo_RejectsUntrustedURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr error
	}{
		{"plain http", "http://generativelanguage.googleapis.com/files/abc", security.ErrInvalidScheme},
		{"foreign host", "https://collector.example.com/files/abc", security.ErrUntrustedHost},
		{"lookalike host", "https://googleapis.com.example.net/files/abc", security.ErrUntrustedHost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm := &fakeModels{videosOp: &genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
				GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: tt.uri}}},
			}}}
			p := testProvider(fm, &fakeOperations{})

			_, err := p.GenerateVideo(context.Background(), "x", nil, models.DefaultRegistry().MustGet(models.ModelVeo), func(string) {})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GenerateVideo() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
