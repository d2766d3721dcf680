package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tubegrab/tubegrab/internal/archive"
	"github.com/tubegrab/tubegrab/internal/helpers"
	"github.com/tubegrab/tubegrab/internal/hub"
	"github.com/tubegrab/tubegrab/internal/metrics"
	"github.com/tubegrab/tubegrab/internal/pipeline"
	"github.com/tubegrab/tubegrab/internal/source"
	"github.com/tubegrab/tubegrab/internal/workspace"
)

// MediaHandler serves metadata lookup, the single-file download proxy and
// archive retrieval.
type MediaHandler struct {
	Adapter    source.Adapter
	Hub        pipeline.Emitter
	Workspaces *workspace.Manager
}

func (h *MediaHandler) Register(e *echo.Echo) {
	e.GET("/details", h.details)
	e.GET("/download", h.download)
	e.GET("/download-zip/:fileName", h.downloadZip)
}

func (h *MediaHandler) details(c echo.Context) error {
	videoURL := c.QueryParam("url")
	if videoURL == "" || !h.Adapter.ValidateURL(videoURL) {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid or no YouTube URL provided")
	}
	meta, err := h.Adapter.Metadata(c.Request().Context(), videoURL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch video details.")
	}
	return c.JSON(http.StatusOK, meta)
}

// download relays a single media stream to the client while reporting
// byte-level progress on the requesting session's channel.
func (h *MediaHandler) download(c echo.Context) error {
	videoURL := c.QueryParam("url")
	if videoURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "No YouTube URL provided")
	}
	if !h.Adapter.ValidateURL(videoURL) {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid YouTube URL provided")
	}
	formatType := c.QueryParam("format")
	if formatType == "" {
		formatType = "mp4"
	}
	quality := c.QueryParam("quality")
	sessionID := c.QueryParam("sessionId")

	var opts source.StreamOptions
	var contentType, ext string
	switch formatType {
	case "mp4":
		opts = source.StreamOptions{Kind: source.KindAudioVideo, Quality: quality}
		contentType, ext = "video/mp4", "mp4"
	case "m4a":
		// audio-only always takes the highest available audio rendition
		opts = source.StreamOptions{Kind: source.KindAudioOnly}
		contentType, ext = "audio/mp4", "m4a"
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid format requested.")
	}

	ctx := c.Request().Context()
	meta, err := h.Adapter.Metadata(ctx, videoURL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Download failed!")
	}

	stream, size, err := h.Adapter.OpenStream(ctx, videoURL, opts)
	if err != nil {
		if errors.Is(err, source.ErrUnknownFormat) {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid format requested.")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Download failed!")
	}
	defer stream.Close()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", helpers.SafeFileName(meta.Title, ext)))
	resp.Header().Set(echo.HeaderContentType, contentType)
	if size > 0 {
		resp.Header().Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
	}
	resp.WriteHeader(http.StatusOK)

	notifier := &progressNotifier{total: size}
	if sessionID != "" {
		notifier.emit = func(percent int) {
			h.Hub.EmitTo(sessionID, hub.EventDownloadProgress, hub.DownloadProgressPayload{Progress: percent})
		}
	}

	written, err := io.Copy(io.MultiWriter(resp, notifier), stream)
	metrics.ProxyBytes.Add(float64(written))
	if err != nil {
		// headers are long gone; terminate the relay without another write
		log.Printf("[HTTP] download relay aborted after %d bytes: %v", written, err)
		return nil
	}
	notifier.finish()
	return nil
}

func (h *MediaHandler) downloadZip(c echo.Context) error {
	fileName := c.Param("fileName")
	if !archive.ValidFileName(fileName) {
		return echo.NewHTTPError(http.StatusNotFound, "File not found or has been cleaned up.")
	}
	path := filepath.Join(h.Workspaces.Root(), fileName)

	f, err := h.Workspaces.Fs().Open(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "File not found or has been cleaned up.")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return echo.NewHTTPError(http.StatusNotFound, "File not found or has been cleaned up.")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName))
	c.Response().Header().Set(echo.HeaderContentType, "application/zip")
	http.ServeContent(c.Response(), c.Request(), fileName, info.ModTime(), f)
	return nil
}

// progressNotifier tracks relayed bytes and emits floor(done/total*100) each
// time the percentage advances. Emission is monotonically non-decreasing and
// finish guarantees a trailing 100 on success.
type progressNotifier struct {
	total int64
	done  int64
	last  int
	emit  func(percent int)
}

func (p *progressNotifier) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	if p.emit != nil && p.total > 0 {
		percent := int(p.done * 100 / p.total)
		if percent > 100 {
			// the source delivered more than it announced
			percent = 100
		}
		if percent > p.last {
			p.last = percent
			p.emit(percent)
		}
	}
	return len(b), nil
}

func (p *progressNotifier) finish() {
	if p.emit != nil && p.last < 100 {
		p.last = 100
		p.emit(100)
	}
}
