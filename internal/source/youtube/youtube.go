// Package youtube implements source.Adapter on top of the YouTube scraping
// client. It is the only package that knows about the upstream API shape;
// everything else consumes the adapter contract.
package youtube

import (
	"context"
	"fmt"
	"io"
	"strings"

	yt "github.com/kkdai/youtube/v2"
	"github.com/samber/lo"

	"github.com/tubegrab/tubegrab/internal/source"
)

const watchURLPrefix = "https://www.youtube.com/watch?v="

// Adapter resolves metadata and opens streams for youtube.com media.
type Adapter struct {
	client *yt.Client
}

func New() *Adapter {
	return &Adapter{client: &yt.Client{}}
}

var _ source.Adapter = (*Adapter)(nil)

func (a *Adapter) ValidateURL(url string) bool {
	_, err := yt.ExtractVideoID(url)
	return err == nil
}

func (a *Adapter) ValidatePlaylistURL(url string) bool {
	_, err := yt.ExtractPlaylistID(url)
	return err == nil
}

func (a *Adapter) Metadata(ctx context.Context, url string) (*source.Metadata, error) {
	if !a.ValidateURL(url) {
		return nil, source.ErrInvalidURL
	}
	video, err := a.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching video info: %w", err)
	}

	meta := &source.Metadata{
		Title:       video.Title,
		ViewCount:   video.Views,
		Description: video.Description,
		// the scraping client does not surface tag keywords; the field
		// stays empty rather than being guessed from the description
		Keywords: []string{},
	}
	if len(video.Thumbnails) > 0 {
		// the last thumbnail is the largest one
		meta.Thumbnail = video.Thumbnails[len(video.Thumbnails)-1].URL
	}
	muxed := lo.Filter(video.Formats, func(f yt.Format, _ int) bool {
		return f.AudioChannels > 0 && f.Width > 0 && f.Height > 0
	})
	meta.Renditions = lo.Map(muxed, func(f yt.Format, _ int) source.Rendition {
		return source.Rendition{
			Itag:         f.ItagNo,
			Quality:      f.Quality,
			QualityLabel: f.QualityLabel,
			MimeType:     f.MimeType,
			Container:    containerOf(f.MimeType),
			SizeBytes:    f.ContentLength,
		}
	})
	return meta, nil
}

func (a *Adapter) PlaylistMetadata(ctx context.Context, url string) (*source.PlaylistMetadata, error) {
	if !a.ValidatePlaylistURL(url) {
		return nil, source.ErrInvalidURL
	}
	playlist, err := a.client.GetPlaylistContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching playlist info: %w", err)
	}
	meta := &source.PlaylistMetadata{Title: playlist.Title}
	for _, entry := range playlist.Videos {
		meta.Items = append(meta.Items, source.PlaylistItem{
			Title: entry.Title,
			URL:   watchURLPrefix + entry.ID,
		})
	}
	return meta, nil
}

func (a *Adapter) OpenStream(ctx context.Context, url string, opts source.StreamOptions) (io.ReadCloser, int64, error) {
	if !a.ValidateURL(url) {
		return nil, 0, source.ErrInvalidURL
	}
	video, err := a.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching video info: %w", err)
	}
	format, err := selectFormat(video, opts)
	if err != nil {
		return nil, 0, err
	}
	stream, size, err := a.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, 0, fmt.Errorf("starting stream: %w", err)
	}
	return stream, size, nil
}

// selectFormat picks the best matching rendition for opts. Audio+video wants
// a muxed format; audio-only wants a format without video dimensions.
func selectFormat(video *yt.Video, opts source.StreamOptions) (*yt.Format, error) {
	var best *yt.Format
	for i := range video.Formats {
		f := &video.Formats[i]
		switch opts.Kind {
		case source.KindAudioOnly:
			if f.AudioChannels == 0 || f.Width != 0 || f.Height != 0 {
				continue
			}
		case source.KindAudioVideo:
			if f.AudioChannels == 0 || f.Width == 0 || f.Height == 0 {
				continue
			}
		default:
			return nil, fmt.Errorf("%w: kind %q", source.ErrUnknownFormat, opts.Kind)
		}
		if opts.Quality != "" && !qualityMatches(f, opts.Quality) {
			continue
		}
		if betterFormat(f, best, opts.Kind) {
			best = f
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: kind %q quality %q", source.ErrUnknownFormat, opts.Kind, opts.Quality)
	}
	return best, nil
}

func qualityMatches(f *yt.Format, quality string) bool {
	return strings.EqualFold(f.Quality, quality) ||
		strings.EqualFold(f.QualityLabel, quality) ||
		fmt.Sprint(f.ItagNo) == quality
}

func betterFormat(candidate, current *yt.Format, kind source.StreamKind) bool {
	if current == nil {
		return true
	}
	if kind == source.KindAudioOnly {
		return candidate.Bitrate > current.Bitrate
	}
	if candidate.Height != current.Height {
		return candidate.Height > current.Height
	}
	return candidate.Bitrate > current.Bitrate
}

// containerOf extracts the container name from a mime type such as
// "video/mp4; codecs=...".
func containerOf(mimeType string) string {
	base := mimeType
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = base[:idx]
	}
	if idx := strings.Index(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.TrimSpace(base)
}
