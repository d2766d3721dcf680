package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"

	"github.com/tubegrab/tubegrab/internal/hub"
	"github.com/tubegrab/tubegrab/internal/source"
	"github.com/tubegrab/tubegrab/internal/workspace"
)

type stubAdapter struct {
	meta      *source.Metadata
	playlist  *source.PlaylistMetadata
	streams   map[string]string
	streamErr error
}

func (s *stubAdapter) ValidateURL(url string) bool { return strings.HasPrefix(url, "https://yt/") }
func (s *stubAdapter) ValidatePlaylistURL(url string) bool {
	return strings.HasPrefix(url, "https://yt/playlist/")
}

func (s *stubAdapter) Metadata(ctx context.Context, url string) (*source.Metadata, error) {
	if s.meta == nil {
		return nil, errors.New("metadata unavailable")
	}
	return s.meta, nil
}

func (s *stubAdapter) PlaylistMetadata(ctx context.Context, url string) (*source.PlaylistMetadata, error) {
	if s.playlist == nil {
		return nil, errors.New("playlist unavailable")
	}
	return s.playlist, nil
}

func (s *stubAdapter) OpenStream(ctx context.Context, url string, opts source.StreamOptions) (io.ReadCloser, int64, error) {
	if s.streamErr != nil {
		return nil, 0, s.streamErr
	}
	body, ok := s.streams[string(opts.Kind)]
	if !ok {
		return nil, 0, fmt.Errorf("%w: kind %q", source.ErrUnknownFormat, opts.Kind)
	}
	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []hub.DownloadProgressPayload
}

func (c *captureEmitter) EmitTo(sessionID, event string, data interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := data.(hub.DownloadProgressPayload); ok {
		c.events = append(c.events, p)
	}
	return true
}

func (c *captureEmitter) progress() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []int
	for _, e := range c.events {
		out = append(out, e.Progress)
	}
	return out
}

func newMediaHandler(adapter source.Adapter, emitter *captureEmitter, fs afero.Fs) *MediaHandler {
	return &MediaHandler{
		Adapter:    adapter,
		Hub:        emitter,
		Workspaces: workspace.NewManager(fs, "temp"),
	}
}

func TestDetails_InvalidURL(t *testing.T) {
	e := echo.New()
	h := newMediaHandler(&stubAdapter{}, &captureEmitter{}, afero.NewMemMapFs())

	req := httptest.NewRequest(http.MethodGet, "/details?url=https://example.com/x", nil)
	rec := httptest.NewRecorder()
	err := h.details(e.NewContext(req, rec))

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestDetails_ReturnsMetadata(t *testing.T) {
	e := echo.New()
	adapter := &stubAdapter{meta: &source.Metadata{
		Title:     "A Video",
		ViewCount: 42,
		Renditions: []source.Rendition{
			{Itag: 22, Quality: "hd720", MimeType: "video/mp4", Container: "mp4"},
		},
	}}
	h := newMediaHandler(adapter, &captureEmitter{}, afero.NewMemMapFs())

	req := httptest.NewRequest(http.MethodGet, "/details?url=https://yt/v1", nil)
	rec := httptest.NewRecorder()
	if err := h.details(e.NewContext(req, rec)); err != nil {
		t.Fatalf("details: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	for _, want := range []string{`"title":"A Video"`, `"viewCount":42`, `"videoFormats"`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("response missing %s: %s", want, rec.Body.String())
		}
	}
}

func TestDownload_M4AScenario(t *testing.T) {
	e := echo.New()
	adapter := &stubAdapter{
		meta: &source.Metadata{Title: "My Song: Live"},
		streams: map[string]string{
			string(source.KindAudioOnly): "audio only bytes here",
		},
	}
	emitter := &captureEmitter{}
	h := newMediaHandler(adapter, emitter, afero.NewMemMapFs())

	req := httptest.NewRequest(http.MethodGet, "/download?url=https://yt/v1&format=m4a&sessionId=sess-1", nil)
	rec := httptest.NewRecorder()
	if err := h.download(e.NewContext(req, rec)); err != nil {
		t.Fatalf("download: %v", err)
	}

	if got := rec.Header().Get(echo.HeaderContentType); got != "audio/mp4" {
		t.Fatalf("expected Content-Type audio/mp4, got %q", got)
	}
	cd := rec.Header().Get(echo.HeaderContentDisposition)
	if !strings.Contains(cd, `attachment`) || !strings.Contains(cd, `My Song_ Live.m4a`) {
		t.Fatalf("unexpected Content-Disposition %q", cd)
	}
	if rec.Body.String() != "audio only bytes here" {
		t.Fatalf("body is not the audio stream: %q", rec.Body.String())
	}

	percents := emitter.progress()
	if len(percents) == 0 {
		t.Fatal("no progress events emitted")
	}
	last := 0
	for _, p := range percents {
		if p < last {
			t.Fatalf("progress not monotone: %v", percents)
		}
		last = p
	}
	if last != 100 {
		t.Fatalf("final progress is %d, want 100: %v", last, percents)
	}
}

func TestDownload_MP4Default(t *testing.T) {
	e := echo.New()
	adapter := &stubAdapter{
		meta: &source.Metadata{Title: "Clip"},
		streams: map[string]string{
			string(source.KindAudioVideo): "muxed bytes",
		},
	}
	h := newMediaHandler(adapter, &captureEmitter{}, afero.NewMemMapFs())

	req := httptest.NewRequest(http.MethodGet, "/download?url=https://yt/v1", nil)
	rec := httptest.NewRecorder()
	if err := h.download(e.NewContext(req, rec)); err != nil {
		t.Fatalf("download: %v", err)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "video/mp4" {
		t.Fatalf("expected video/mp4, got %q", got)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "Clip.mp4") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
	if rec.Body.String() != "muxed bytes" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestDownload_InvalidFormatRejectedBeforeStream(t *testing.T) {
	e := echo.New()
	h := newMediaHandler(&stubAdapter{meta: &source.Metadata{Title: "x"}}, &captureEmitter{}, afero.NewMemMapFs())

	req := httptest.NewRequest(http.MethodGet, "/download?url=https://yt/v1&format=ogg", nil)
	rec := httptest.NewRecorder()
	err := h.download(e.NewContext(req, rec))

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestDownload_NoURL(t *testing.T) {
	e := echo.New()
	h := newMediaHandler(&stubAdapter{}, &captureEmitter{}, afero.NewMemMapFs())

	req := httptest.NewRequest(http.MethodGet, "/download", nil)
	rec := httptest.NewRecorder()
	err := h.download(e.NewContext(req, rec))

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestDownloadZip_ServesArchive(t *testing.T) {
	e := echo.New()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "temp/My Mix-abc12345.zip", []byte("zip bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	h := newMediaHandler(&stubAdapter{}, &captureEmitter{}, fs)

	req := httptest.NewRequest(http.MethodGet, "/download-zip/My%20Mix-abc12345.zip", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("fileName")
	ctx.SetParamValues("My Mix-abc12345.zip")

	if err := h.downloadZip(ctx); err != nil {
		t.Fatalf("downloadZip: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "zip bytes" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "application/zip" {
		t.Fatalf("expected application/zip, got %q", got)
	}
}

func TestDownloadZip_MissingOrCleaned(t *testing.T) {
	e := echo.New()
	h := newMediaHandler(&stubAdapter{}, &captureEmitter{}, afero.NewMemMapFs())

	req := httptest.NewRequest(http.MethodGet, "/download-zip/gone.zip", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("fileName")
	ctx.SetParamValues("gone.zip")

	err := h.downloadZip(ctx)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 HTTPError, got %v", err)
	}
}

func TestDownloadZip_RejectsTraversal(t *testing.T) {
	e := echo.New()
	h := newMediaHandler(&stubAdapter{}, &captureEmitter{}, afero.NewMemMapFs())

	for _, name := range []string{"../secret.zip", "a/b.zip", "..", "notzip.txt"} {
		req := httptest.NewRequest(http.MethodGet, "/download-zip/x", nil)
		rec := httptest.NewRecorder()
		ctx := e.NewContext(req, rec)
		ctx.SetParamNames("fileName")
		ctx.SetParamValues(name)

		err := h.downloadZip(ctx)
		var he *echo.HTTPError
		if !errors.As(err, &he) || he.Code != http.StatusNotFound {
			t.Fatalf("name %q: expected 404, got %v", name, err)
		}
	}
}

func TestProgressNotifier_MonotoneTo100(t *testing.T) {
	var got []int
	p := &progressNotifier{total: 10, emit: func(pct int) { got = append(got, pct) }}

	for i := 0; i < 10; i++ {
		if _, err := p.Write([]byte{0}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	p.finish()

	last := 0
	for _, pct := range got {
		if pct <= last {
			t.Fatalf("not strictly increasing: %v", got)
		}
		last = pct
	}
	if last != 100 {
		t.Fatalf("expected to end at 100, got %v", got)
	}
}

func TestProgressNotifier_UnknownTotalStillFinishes(t *testing.T) {
	var got []int
	p := &progressNotifier{total: 0, emit: func(pct int) { got = append(got, pct) }}
	if _, err := p.Write(make([]byte, 1024)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	p.finish()
	if len(got) != 1 || got[0] != 100 {
		t.Fatalf("expected single trailing 100, got %v", got)
	}
}

func TestProgressNotifier_OverdeliveryClampsAt100(t *testing.T) {
	var got []int
	p := &progressNotifier{total: 10, emit: func(pct int) { got = append(got, pct) }}

	if _, err := p.Write(make([]byte, 25)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := p.Write(make([]byte, 25)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	p.finish()

	for _, pct := range got {
		if pct > 100 {
			t.Fatalf("emitted percent above 100: %v", got)
		}
	}
	if len(got) == 0 || got[len(got)-1] != 100 {
		t.Fatalf("expected a single capped 100, got %v", got)
	}
	if len(got) != 1 {
		t.Fatalf("100 should be emitted exactly once, got %v", got)
	}
}
