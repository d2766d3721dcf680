package pipeline

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"time"

	"github.com/tubegrab/tubegrab/internal/archive"
	"github.com/tubegrab/tubegrab/internal/helpers"
	"github.com/tubegrab/tubegrab/internal/hub"
	"github.com/tubegrab/tubegrab/internal/metrics"
	"github.com/tubegrab/tubegrab/internal/session"
	"github.com/tubegrab/tubegrab/internal/source"
	"github.com/tubegrab/tubegrab/internal/workspace"
)

// Client-facing messages. Failures collapse into a single generic error at
// the job boundary; details stay in the server log.
const (
	msgInvalidPlaylist = "Invalid YouTube Playlist URL."
	msgJobActive       = "A playlist download is already in progress for this session."
	msgJobFailed       = "An error occurred while processing the playlist."
	msgArchiving       = "All videos downloaded. Creating ZIP file..."
)

// Emitter delivers named events to a session on the progress channel.
// Satisfied by *hub.Hub.
type Emitter interface {
	EmitTo(sessionID, event string, data interface{}) bool
}

// Manager runs playlist jobs end to end: singleton check, workspace,
// sequential fetch, archive, completion event and delayed cleanup.
type Manager struct {
	pipeline   *Pipeline
	workspaces *workspace.Manager
	builder    *archive.Builder
	emitter    Emitter
	registry   *session.Registry
	retention  time.Duration
	logger     *log.Logger
}

func NewManager(p *Pipeline, ws *workspace.Manager, builder *archive.Builder, emitter Emitter, registry *session.Registry, retention time.Duration) *Manager {
	return &Manager{
		pipeline:   p,
		workspaces: ws,
		builder:    builder,
		emitter:    emitter,
		registry:   registry,
		retention:  retention,
		logger:     log.New(log.Writer(), "[JOB] ", log.LstdFlags),
	}
}

// StartPlaylistJob runs one playlist job for a session. It blocks until the
// job reaches a terminal state; callers run it on its own goroutine. A
// second request while a job is active for the same session is rejected.
func (m *Manager) StartPlaylistJob(ctx context.Context, sessionID, playlistURL string) {
	if !m.registry.TryStartJob(sessionID) {
		// an unknown session means the client is already gone; there is
		// nobody to tell, and "already in progress" would be a lie
		if m.registry.Known(sessionID) {
			m.emitter.EmitTo(sessionID, hub.EventPlaylistError, hub.ErrorPayload{Message: msgJobActive})
		}
		metrics.PlaylistJobs.WithLabelValues(metrics.OutcomeRejected).Inc()
		return
	}
	defer m.registry.FinishJob(sessionID)

	job := &Job{SessionID: sessionID, PlaylistURL: playlistURL, Phase: PhaseIdle}

	// Fail fast on a malformed identifier, before any filesystem or
	// network work happens.
	if !m.pipeline.adapter.ValidatePlaylistURL(playlistURL) {
		m.fail(job, source.ErrInvalidURL, msgInvalidPlaylist)
		return
	}

	workspaceDir, err := m.workspaces.Create(sessionID)
	if err != nil {
		m.fail(job, err, msgJobFailed)
		return
	}
	m.registry.SetWorkspace(sessionID, workspaceDir)

	// Cleanup is scheduled no matter how the job ends. The archive path
	// is empty until the build succeeds; ScheduleCleanup tolerates that.
	var archivePath string
	defer func() {
		m.workspaces.ScheduleCleanup(workspaceDir, archivePath, m.retention)
	}()

	onProgress := func(message string) {
		m.emitter.EmitTo(sessionID, hub.EventPlaylistProgress, hub.ProgressPayload{Message: message})
	}

	if err := m.pipeline.Run(ctx, job, workspaceDir, onProgress); err != nil {
		m.fail(job, err, m.clientMessage(err))
		return
	}

	job.Phase = PhaseArchiving
	onProgress(msgArchiving)

	archiveName := archive.Name(helpers.SanitizeTitle(job.Title), sessionID)
	candidate := filepath.Join(m.workspaces.Root(), archiveName)
	if err := m.builder.Build(workspaceDir, candidate); err != nil {
		m.fail(job, err, msgJobFailed)
		return
	}
	archivePath = candidate

	job.Phase = PhaseDone
	m.emitter.EmitTo(sessionID, hub.EventPlaylistFinished, hub.FinishedPayload{DownloadURL: "/download-zip/" + archiveName})
	metrics.PlaylistJobs.WithLabelValues(metrics.OutcomeFinished).Inc()
	m.logger.Printf("session %s: playlist %q finished, %d items, archive %s", sessionID, job.Title, job.ItemCount, archiveName)
}

func (m *Manager) fail(job *Job, err error, clientMsg string) {
	job.Phase = PhaseFailed
	m.logger.Printf("session %s: playlist job failed: %v", job.SessionID, err)
	m.emitter.EmitTo(job.SessionID, hub.EventPlaylistError, hub.ErrorPayload{Message: clientMsg})
	metrics.PlaylistJobs.WithLabelValues(metrics.OutcomeFailed).Inc()
}

func (m *Manager) clientMessage(err error) string {
	if errors.Is(err, source.ErrInvalidURL) {
		return msgInvalidPlaylist
	}
	return msgJobFailed
}

// HandleDisconnect schedules cleanup of an abandoned workspace after the
// grace period. A job still in flight keeps writing; the grace period gives
// it room to finish before the subtree disappears.
func (m *Manager) HandleDisconnect(sessionID string, grace time.Duration) {
	workspacePath, existed := m.registry.Unregister(sessionID)
	if !existed || workspacePath == "" {
		return
	}
	m.workspaces.ScheduleCleanup(workspacePath, "", grace)
}
