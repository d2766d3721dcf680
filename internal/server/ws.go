package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/tubegrab/tubegrab/internal/hub"
	"github.com/tubegrab/tubegrab/internal/metrics"
	"github.com/tubegrab/tubegrab/internal/pipeline"
	"github.com/tubegrab/tubegrab/internal/session"
)

// ChannelHandler upgrades clients onto the progress notification channel and
// dispatches their inbound requests.
type ChannelHandler struct {
	Hub            *hub.Hub
	Registry       *session.Registry
	Manager        *pipeline.Manager
	AllowedOrigins []string
}

func (h *ChannelHandler) Register(e *echo.Echo) {
	e.GET("/ws", h.connect)
}

func (h *ChannelHandler) connect(c echo.Context) error {
	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already wrote the handshake failure
		return nil
	}

	sessionID := h.Hub.Add(conn)
	h.Registry.Register(sessionID)
	metrics.ActiveSessions.Inc()

	// read loop; the handler goroutine stays parked here for the lifetime
	// of the connection
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			h.Hub.Remove(sessionID)
			return nil
		}
		var env hub.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("[HUB] session %s sent malformed frame: %v", sessionID, err)
			continue
		}
		switch env.Event {
		case hub.EventDownloadPlaylist:
			var payload hub.DownloadPlaylistPayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				h.Hub.EmitTo(sessionID, hub.EventPlaylistError, hub.ErrorPayload{Message: "Invalid playlist request."})
				continue
			}
			// the job outlives this read loop iteration; disconnection
			// does not abort it, it only stops event delivery
			go h.Manager.StartPlaylistJob(context.Background(), sessionID, payload.PlaylistURL)
		default:
			log.Printf("[HUB] session %s sent unknown event %q", sessionID, env.Event)
		}
	}
}

func (h *ChannelHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
