package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	appconfig "github.com/tubegrab/tubegrab/config"
	"github.com/tubegrab/tubegrab/internal/archive"
	"github.com/tubegrab/tubegrab/internal/assist"
	"github.com/tubegrab/tubegrab/internal/hub"
	"github.com/tubegrab/tubegrab/internal/metrics"
	"github.com/tubegrab/tubegrab/internal/pipeline"
	"github.com/tubegrab/tubegrab/internal/session"
	"github.com/tubegrab/tubegrab/internal/source/youtube"
	"github.com/tubegrab/tubegrab/internal/workspace"
)

func Run(cfg *appconfig.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Initialize shared dependencies (top-level DI)
	fs := afero.NewOsFs()
	if err := fs.MkdirAll(cfg.Downloader.WorkspaceRoot, 0o755); err != nil {
		return fmt.Errorf("creating workspace root: %w", err)
	}

	adapter := youtube.New()
	workspaces := workspace.NewManager(fs, cfg.Downloader.WorkspaceRoot)
	registry := session.NewRegistry()
	h := hub.New()

	pipe := pipeline.New(adapter, fs, cfg.Downloader.ItemTimeout)
	manager := pipeline.NewManager(pipe, workspaces, archive.NewBuilder(fs), h, registry, cfg.Downloader.Retention)
	h.OnDisconnect = func(sessionID string) {
		metrics.ActiveSessions.Dec()
		manager.HandleDisconnect(sessionID, cfg.Downloader.DisconnectGrace)
	}

	mh := &MediaHandler{Adapter: adapter, Hub: h, Workspaces: workspaces}
	mh.Register(e)

	ch := &ChannelHandler{Hub: h, Registry: registry, Manager: manager, AllowedOrigins: cfg.Server.AllowedOrigins}
	ch.Register(e)

	ah := &AssistHandler{Client: assist.NewClient(cfg.Assist.APIKey, cfg.Assist.Model, cfg.Assist.Endpoint, cfg.Assist.Timeout)}
	ah.Register(e)

	if addr == "" {
		addr = cfg.Server.Listen
		if addr != "" && !strings.Contains(addr, ":") {
			// bare port in config
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":5000"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
