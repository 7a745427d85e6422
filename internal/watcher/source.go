package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"propsync/internal/logger"
	"propsync/internal/model"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// source turns fsnotify notifications under root into FileEvents and keeps
// every directory below root watched.
type source struct {
	fw     *fsnotify.Watcher
	root   string
	events chan model.FileEvent

	mu   sync.Mutex
	dirs map[string]struct{}
}

func newSource(root string, bufferSize int) (*source, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	s := &source{
		fw:     fw,
		root:   root,
		events: make(chan model.FileEvent, bufferSize),
		dirs:   make(map[string]struct{}),
	}

	if _, err := s.addRecursive(root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return s, nil
}

// addRecursive watches dir and its subdirectories and returns the files
// found below it.
func (s *source) addRecursive(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			files = append(files, path)
			return nil
		}

		if err := s.fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}

		s.mu.Lock()
		s.dirs[path] = struct{}{}
		s.mu.Unlock()

		logger.Log.Debug("watching directory",
			zap.String("path", path))
		return nil
	})
	return files, err
}

// forgetDir drops dir and everything below it from the watched set and
// reports whether dir was a watched directory.
func (s *source) forgetDir(dir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dirs[dir]; !ok {
		return false
	}

	prefix := dir + string(os.PathSeparator)
	for d := range s.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(s.dirs, d)
			_ = s.fw.Remove(d)
		}
	}
	return true
}

func (s *source) run(ctx context.Context) {
	defer close(s.events)

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("watcher stopping")
			return

		case fsEvent, ok := <-s.fw.Events:
			if !ok {
				return
			}
			if !s.dispatch(ctx, fsEvent) {
				return
			}

		case err, ok := <-s.fw.Errors:
			if !ok {
				return
			}

			logger.Log.Error("watcher error",
				zap.Error(err))
		}
	}
}

func (s *source) dispatch(ctx context.Context, fsEvent fsnotify.Event) bool {
	eventType := toEventType(fsEvent.Op)
	if eventType == "" {
		return true
	}

	event := model.FileEvent{
		Type:      eventType,
		Path:      fsEvent.Name,
		Timestamp: time.Now(),
	}

	switch eventType {
	case model.EventCreate:
		info, err := os.Stat(fsEvent.Name)
		if err != nil || !info.IsDir() {
			break
		}
		event.IsDir = true

		// files may land in a new directory before it is watched
		files, err := s.addRecursive(fsEvent.Name)
		if err != nil {
			logger.Log.Warn("failed to watch new directory",
				zap.String("path", fsEvent.Name),
				zap.Error(err))
		}
		for _, f := range files {
			if !s.emit(ctx, model.FileEvent{Type: model.EventCreate, Path: f, Timestamp: event.Timestamp}) {
				return false
			}
		}

	case model.EventRemove, model.EventRename:
		event.IsDir = s.forgetDir(fsEvent.Name)
	}

	return s.emit(ctx, event)
}

func (s *source) emit(ctx context.Context, event model.FileEvent) bool {
	select {
	case s.events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *source) close() error {
	return s.fw.Close()
}

func toEventType(op fsnotify.Op) model.EventType {
	switch {
	case op.Has(fsnotify.Create):
		return model.EventCreate
	case op.Has(fsnotify.Write):
		return model.EventWrite
	case op.Has(fsnotify.Remove):
		return model.EventRemove
	case op.Has(fsnotify.Rename):
		return model.EventRename
	default:
		return ""
	}
}
