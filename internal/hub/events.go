package hub

import "encoding/json"

// Event names carried over the channel.
const (
	// EventSession tells a freshly connected client its session identity.
	EventSession = "session"
	// EventDownloadPlaylist is the inbound request that starts a playlist job.
	EventDownloadPlaylist = "downloadPlaylist"
	// EventPlaylistProgress reports pipeline state transitions as text.
	EventPlaylistProgress = "playlistProgress"
	// EventPlaylistFinished carries the archive retrieval location.
	EventPlaylistFinished = "playlistFinished"
	// EventPlaylistError reports a terminal job failure.
	EventPlaylistError = "playlistError"
	// EventDownloadProgress carries single-file byte-level percent ticks.
	EventDownloadProgress = "downloadProgress"
)

// Envelope is the wire frame for every channel message, in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SessionPayload announces the assigned session id.
type SessionPayload struct {
	ID string `json:"id"`
}

// ProgressPayload is the body of playlistProgress events.
type ProgressPayload struct {
	Message string `json:"message"`
}

// FinishedPayload is the body of playlistFinished events.
type FinishedPayload struct {
	DownloadURL string `json:"downloadUrl"`
}

// ErrorPayload is the body of playlistError events.
type ErrorPayload struct {
	Message string `json:"message"`
}

// DownloadProgressPayload is the body of downloadProgress events.
type DownloadProgressPayload struct {
	Progress int `json:"progress"`
}

// DownloadPlaylistPayload is the body of the inbound downloadPlaylist request.
type DownloadPlaylistPayload struct {
	PlaylistURL string `json:"playlistURL"`
}
