// Package pipeline downloads every item of a playlist into a session
// workspace, strictly one at a time, and drives the job through its state
// machine: fetching metadata, fetching item i, archiving, done or failed.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/tubegrab/tubegrab/internal/helpers"
	"github.com/tubegrab/tubegrab/internal/metrics"
	"github.com/tubegrab/tubegrab/internal/source"
)

// itemExtension is the container every playlist item is stored with; the
// pipeline always requests the muxed audio+video rendition.
const itemExtension = ".mp4"

// Phase is one state of a playlist job.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseFetchingMetadata Phase = "fetching-metadata"
	PhaseFetchingItem     Phase = "fetching-item"
	PhaseArchiving        Phase = "archiving"
	PhaseDone             Phase = "done"
	PhaseFailed           Phase = "failed"
)

// Job is the mutable state of one playlist download.
type Job struct {
	SessionID   string
	PlaylistURL string
	Phase       Phase
	// ItemIndex is 1-based and only ever moves forward.
	ItemIndex int
	ItemCount int
	Title     string
}

func (j *Job) enterItem(i int) error {
	if i < j.ItemIndex {
		return fmt.Errorf("item index moved backwards: %d after %d", i, j.ItemIndex)
	}
	if i > j.ItemCount {
		return fmt.Errorf("item index %d exceeds item count %d", i, j.ItemCount)
	}
	j.Phase = PhaseFetchingItem
	j.ItemIndex = i
	return nil
}

// Pipeline fetches playlist items sequentially into a workspace directory.
type Pipeline struct {
	adapter     source.Adapter
	fs          afero.Fs
	itemTimeout time.Duration
	logger      *log.Logger
}

func New(adapter source.Adapter, fs afero.Fs, itemTimeout time.Duration) *Pipeline {
	return &Pipeline{
		adapter:     adapter,
		fs:          fs,
		itemTimeout: itemTimeout,
		logger:      log.New(log.Writer(), "[JOB] ", log.LstdFlags),
	}
}

// Run resolves the playlist behind job.PlaylistURL and downloads each item,
// in listing order, into workspaceDir. onProgress receives one user-facing
// message per state transition. On success the workspace directory is the
// archive source and the job carries the playlist title.
//
// The URL must already be validated; Run double-checks and fails fast
// without any network I/O for a malformed identifier.
func (p *Pipeline) Run(ctx context.Context, job *Job, workspaceDir string, onProgress func(message string)) error {
	if !p.adapter.ValidatePlaylistURL(job.PlaylistURL) {
		job.Phase = PhaseFailed
		return source.ErrInvalidURL
	}

	job.Phase = PhaseFetchingMetadata
	onProgress("Fetching playlist information...")

	playlist, err := p.adapter.PlaylistMetadata(ctx, job.PlaylistURL)
	if err != nil {
		job.Phase = PhaseFailed
		return fmt.Errorf("resolving playlist: %w", err)
	}
	job.Title = playlist.Title
	job.ItemCount = len(playlist.Items)

	onProgress(fmt.Sprintf("Found %d videos. Starting downloads...", len(playlist.Items)))

	for i, item := range playlist.Items {
		if err := job.enterItem(i + 1); err != nil {
			job.Phase = PhaseFailed
			return err
		}
		safeName := helpers.SanitizeTitle(item.Title) + itemExtension
		onProgress(fmt.Sprintf("Downloading video %d/%d: %s", i+1, len(playlist.Items), safeName))

		written, err := p.fetchItem(ctx, item.URL, filepath.Join(workspaceDir, safeName))
		if err != nil {
			job.Phase = PhaseFailed
			return fmt.Errorf("downloading %q: %w", item.Title, err)
		}
		metrics.ItemsDownloaded.Inc()
		p.logger.Printf("session %s: item %d/%d done (%s)", job.SessionID, i+1, len(playlist.Items), humanize.Bytes(uint64(written)))
	}

	return nil
}

// fetchItem streams one item to disk. The write counts as complete only when
// the source stream hit EOF and the destination file closed cleanly.
func (p *Pipeline) fetchItem(ctx context.Context, url, destPath string) (int64, error) {
	if p.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.itemTimeout)
		defer cancel()
	}

	stream, _, err := p.adapter.OpenStream(ctx, url, source.StreamOptions{Kind: source.KindAudioVideo})
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	dest, err := p.fs.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("creating item file: %w", err)
	}

	written, err := io.Copy(dest, stream)
	if err != nil {
		dest.Close()
		return written, fmt.Errorf("writing item: %w", err)
	}
	if err := dest.Close(); err != nil {
		return written, fmt.Errorf("flushing item: %w", err)
	}
	return written, nil
}
