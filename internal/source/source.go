package source

import (
	"context"
	"errors"
	"io"
)

// Sentinel errors shared by every adapter implementation.
var (
	// ErrInvalidURL marks a media or playlist identifier that fails the
	// adapter's grammar check. No network I/O was attempted.
	ErrInvalidURL = errors.New("invalid media url")
	// ErrUnknownFormat marks a format/quality selector the source cannot
	// satisfy for the requested media.
	ErrUnknownFormat = errors.New("unknown format or quality")
)

// StreamKind selects which elementary streams a rendition carries.
type StreamKind string

const (
	// KindAudioVideo selects a muxed audio+video container.
	KindAudioVideo StreamKind = "audioandvideo"
	// KindAudioOnly selects an audio-only rendition.
	KindAudioOnly StreamKind = "audioonly"
)

// StreamOptions narrows the rendition to open.
type StreamOptions struct {
	Kind StreamKind
	// Quality is a source-specific quality selector. Empty means highest
	// available for the requested kind.
	Quality string
}

// Rendition is one selectable (quality, container) pair advertised by the
// source for a media item.
type Rendition struct {
	Itag         int    `json:"itag"`
	Quality      string `json:"quality"`
	QualityLabel string `json:"qualityLabel,omitempty"`
	MimeType     string `json:"mimeType"`
	Container    string `json:"container"`
	SizeBytes    int64  `json:"sizeBytes,omitempty"`
}

// Metadata describes one media item.
type Metadata struct {
	Title       string      `json:"title"`
	ViewCount   int         `json:"viewCount"`
	Thumbnail   string      `json:"thumbnail"`
	Description string      `json:"description"`
	Keywords    []string    `json:"keywords"`
	Renditions  []Rendition `json:"videoFormats"`
}

// PlaylistItem is one entry of a playlist, in listing order.
type PlaylistItem struct {
	Title string
	URL   string
}

// PlaylistMetadata describes a playlist and its ordered items.
type PlaylistMetadata struct {
	Title string
	Items []PlaylistItem
}

// Adapter is the capability the pipeline and the proxy consume: resolve
// metadata for an identifier, or open a readable byte stream for a chosen
// rendition. Implementations must not retry on their own; a failed call is
// terminal for the current job or request.
type Adapter interface {
	// ValidateURL reports whether url is a well-formed single-media
	// identifier. It performs no network I/O.
	ValidateURL(url string) bool
	// ValidatePlaylistURL reports whether url is a well-formed playlist
	// identifier. It performs no network I/O.
	ValidatePlaylistURL(url string) bool
	// Metadata resolves title, stats and available renditions.
	Metadata(ctx context.Context, url string) (*Metadata, error)
	// PlaylistMetadata resolves a playlist title and its ordered items.
	PlaylistMetadata(ctx context.Context, url string) (*PlaylistMetadata, error)
	// OpenStream opens the byte stream for the rendition selected by
	// opts. The returned size is the total content length, or 0 when the
	// source does not report one. The caller owns closing the stream.
	OpenStream(ctx context.Context, url string, opts StreamOptions) (io.ReadCloser, int64, error)
}
