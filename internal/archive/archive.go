// Package archive turns a finished workspace directory into a single zip
// file. Contents are streamed file by file; nothing is buffered whole in
// memory.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/spf13/afero"
)

// Builder writes zip archives from workspace directories.
type Builder struct {
	fs afero.Fs
}

func NewBuilder(fs afero.Fs) *Builder {
	return &Builder{fs: fs}
}

// Build compresses every regular file under sourceDir into a zip archive at
// outputPath. Entry names are relative to sourceDir. The archive is fully
// flushed and closed before Build returns nil; on any failure the partial
// output is removed so a later reader cannot mistake it for complete.
func (b *Builder) Build(sourceDir, outputPath string) (err error) {
	out, err := b.fs.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing archive: %w", cerr)
		}
		if err != nil {
			_ = b.fs.Remove(outputPath)
		}
	}()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	err = afero.Walk(b.fs, sourceDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(sourceDir, path)
		if relErr != nil {
			return relErr
		}
		return b.addFile(zw, path, filepath.ToSlash(rel), info)
	})
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("archiving %s: %w", sourceDir, err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return nil
}

func (b *Builder) addFile(zw *zip.Writer, path, name string, info os.FileInfo) error {
	src, err := b.fs.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: info.ModTime(),
	}
	entry, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, src)
	return err
}

// Name derives the archive file name for a playlist. The session suffix
// keeps two sessions downloading the same playlist from colliding in the
// shared output directory.
func Name(sanitizedTitle, sessionID string) string {
	suffix := sessionID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	if suffix == "" {
		return sanitizedTitle + ".zip"
	}
	return sanitizedTitle + "-" + suffix + ".zip"
}

// ValidFileName reports whether a client-supplied archive name is a plain
// file name without path traversal.
func ValidFileName(name string) bool {
	if name == "" || name != filepath.Base(name) {
		return false
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return false
	}
	return strings.HasSuffix(name, ".zip")
}
