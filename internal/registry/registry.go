// Package registry records, per workspace, the modification time of every
// local file at its last synchronization.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"propsync/internal/logger"
	"propsync/internal/util"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const FileName = ".published"

var ErrLocked = errors.New("workspace registry is locked by another session")

// Registry maps absolute local paths to epoch seconds. It is owned by a
// single session and is not safe for concurrent use.
type Registry struct {
	fs      afero.Fs
	path    string
	lock    *flock.Flock
	entries map[string]int64
	loaded  bool
}

func New(home string) *Registry {
	path := filepath.Join(home, FileName)
	return &Registry{
		fs:      afero.NewOsFs(),
		path:    path,
		lock:    flock.New(path + ".lock"),
		entries: make(map[string]int64),
	}
}

func (r *Registry) Path() string {
	return r.path
}

// Load takes the workspace lock and reads the persisted document. A missing
// document yields an empty registry; an unreadable one is discarded with a
// warning, which at worst republishes everything.
func (r *Registry) Load() error {
	if !r.lock.Locked() {
		ok, err := r.lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to lock registry: %w", err)
		}
		if !ok {
			return ErrLocked
		}
	}

	r.entries = make(map[string]int64)
	r.loaded = true

	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read registry: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &r.entries); err != nil {
		logger.Log.Warn("discarding unreadable registry",
			zap.String("path", r.path),
			zap.Error(err))
		r.entries = make(map[string]int64)
	}

	return nil
}

// Add records path with lastModifiedMillis truncated to seconds. It returns
// false when the stored value already matches, meaning the file is clean.
func (r *Registry) Add(path string, lastModifiedMillis int64) bool {
	seconds := lastModifiedMillis / 1000
	if stored, ok := r.entries[path]; ok && stored == seconds {
		return false
	}
	r.entries[path] = seconds
	return true
}

func (r *Registry) Get(path string) (int64, bool) {
	seconds, ok := r.entries[path]
	return seconds, ok
}

func (r *Registry) Remove(path string) {
	delete(r.entries, path)
}

// RemoveFolder drops every entry whose path starts with prefix.
func (r *Registry) RemoveFolder(prefix string) {
	for path := range r.entries {
		if strings.HasPrefix(path, prefix) {
			delete(r.entries, path)
		}
	}
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// Save persists the registry atomically. It does nothing if Load never ran.
func (r *Registry) Save() error {
	if !r.loaded {
		return nil
	}

	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	if err := util.AtomicWrite(r.fs, r.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}

	logger.Log.Debug("registry saved",
		zap.String("path", r.path),
		zap.Int("entries", len(r.entries)))
	return nil
}

// Close releases the workspace lock.
func (r *Registry) Close() error {
	if !r.lock.Locked() {
		return nil
	}
	if err := r.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock registry: %w", err)
	}
	return nil
}
