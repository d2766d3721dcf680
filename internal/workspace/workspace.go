// Package workspace manages the per-session directories that playlist
// downloads are staged in, and the delayed cleanup of those directories and
// their finished archives.
package workspace

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const dirPerm = 0o755

// Manager owns the workspace root. Every session gets exactly one subtree
// under it; no two sessions ever share a path.
type Manager struct {
	fs     afero.Fs
	root   string
	logger *log.Logger

	mu      sync.Mutex
	created map[string]string // session id -> workspace path
}

func NewManager(fs afero.Fs, root string) *Manager {
	return &Manager{
		fs:      fs,
		root:    root,
		logger:  log.New(log.Writer(), "[WORKSPACE] ", log.LstdFlags),
		created: make(map[string]string),
	}
}

// Root returns the directory finished archives are written to.
func (m *Manager) Root() string { return m.root }

// Fs exposes the backing filesystem so the archive builder and the retrieval
// handler operate on the same view as the manager.
func (m *Manager) Fs() afero.Fs { return m.fs }

// Create returns the workspace directory for a session, creating it on first
// use. Calling it again for the same session returns the same path.
func (m *Manager) Create(sessionID string) (string, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if path, ok := m.created[sessionID]; ok {
		return path, nil
	}
	path := filepath.Join(m.root, sessionID)
	if err := m.fs.MkdirAll(path, dirPerm); err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}
	m.created[sessionID] = path
	return path, nil
}

// Remove deletes a session's workspace immediately. Missing directories are
// not an error.
func (m *Manager) Remove(sessionID string) error {
	m.mu.Lock()
	path, ok := m.created[sessionID]
	delete(m.created, sessionID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.fs.RemoveAll(path)
}

// ScheduleCleanup removes the workspace directory and the archive file after
// delay. Either being absent by then is fine. The removal runs exactly once
// per call, regardless of how the job that scheduled it ended.
func (m *Manager) ScheduleCleanup(dirPath, archivePath string, delay time.Duration) *time.Timer {
	return time.AfterFunc(delay, func() {
		m.cleanup(dirPath, archivePath)
	})
}

func (m *Manager) cleanup(dirPath, archivePath string) {
	if dirPath != "" {
		if err := m.fs.RemoveAll(dirPath); err != nil {
			m.logger.Printf("removing %s: %v", dirPath, err)
		}
	}
	if archivePath != "" {
		if err := m.fs.Remove(archivePath); err != nil && !isNotExist(err) {
			m.logger.Printf("removing %s: %v", archivePath, err)
		}
	}
	m.forget(dirPath)
}

func (m *Manager) forget(dirPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, path := range m.created {
		if path == dirPath {
			delete(m.created, id)
		}
	}
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || errors.Is(err, afero.ErrFileNotFound)
}
