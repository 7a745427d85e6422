// Package watcher publishes local changes under a directory as they happen.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"propsync/internal/logger"
	"propsync/internal/model"
	"propsync/internal/pathspec"
	"propsync/internal/remote"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Handler applies watched changes to the remote.
type Handler interface {
	PushFile(ctx context.Context, file, key string) (model.Action, error)
	DeleteKey(ctx context.Context, key string, recursive bool, localPath string) error
}

type Options struct {
	Root          string
	Target        string
	WithExtension bool
	IgnoreList    []string
	Debounce      time.Duration
	BufferSize    int
	MaxRetries    uint
	RetryInterval time.Duration
}

type Watcher struct {
	handler   Handler
	opts      Options
	onResult  func(model.SyncResult)
	ready     chan struct{}
	readyOnce sync.Once
}

func New(handler Handler, opts Options) (*Watcher, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("source directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	opts.Root = root
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}

	return &Watcher{handler: handler, opts: opts, ready: make(chan struct{})}, nil
}

// OnResult registers a callback invoked after every handled event.
func (w *Watcher) OnResult(fn func(model.SyncResult)) {
	w.onResult = fn
}

// Ready is closed once every directory under Root is watched by the first
// Run. It stays closed across later runs.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is cancelled. Events are handled one at a time in
// delivery order.
func (w *Watcher) Run(ctx context.Context) error {
	src, err := newSource(w.opts.Root, w.opts.BufferSize)
	if err != nil {
		return err
	}
	defer func() { _ = src.close() }()

	go src.run(ctx)
	w.readyOnce.Do(func() { close(w.ready) })

	events := filter(debounce(ctx, src.events, w.opts.Debounce), w.opts.Root, w.opts.IgnoreList)

	logger.Log.Info("watcher started",
		zap.String("dir", w.opts.Root),
		zap.String("target", w.opts.Target))

	for event := range events {
		result, ok := w.handle(ctx, event)
		if !ok {
			continue
		}
		if w.onResult != nil {
			w.onResult(result)
		}
	}

	return nil
}

func (w *Watcher) handle(ctx context.Context, event model.FileEvent) (model.SyncResult, bool) {
	rel, err := filepath.Rel(w.opts.Root, event.Path)
	if err != nil {
		return model.SyncResult{}, false
	}

	result := model.SyncResult{
		Event:     event,
		Direction: model.DirectionPush,
		LocalPath: event.Path,
	}

	switch event.Type {
	case model.EventCreate, model.EventWrite:
		info, err := os.Stat(event.Path)
		if err != nil || info.IsDir() {
			// gone again, or a directory whose files arrive on their own
			return result, false
		}

		result.RemoteKey = w.keyOf(rel, false)
		result.Action, result.Err = retry(ctx, w.opts, func() (model.Action, error) {
			return w.handler.PushFile(ctx, event.Path, result.RemoteKey)
		})

	case model.EventRemove, model.EventRename:
		result.RemoteKey = w.keyOf(rel, event.IsDir)
		result.Action = model.ActionDelete
		_, result.Err = retry(ctx, w.opts, func() (model.Action, error) {
			return model.ActionDelete, w.handler.DeleteKey(ctx, result.RemoteKey, event.IsDir, event.Path)
		})

	default:
		return result, false
	}

	if result.Err != nil {
		logger.Log.Error("sync failed",
			zap.String("type", string(event.Type)),
			zap.String("path", event.Path),
			zap.String("key", result.RemoteKey),
			zap.Error(result.Err))
	} else {
		logger.Log.Info("synced",
			zap.String("type", string(event.Type)),
			zap.String("path", event.Path),
			zap.String("key", result.RemoteKey),
			zap.String("action", string(result.Action)))
	}

	return result, true
}

// keyOf maps a path relative to Root onto the remote key under Target.
// Directory names keep their dots.
func (w *Watcher) keyOf(rel string, dir bool) string {
	key := filepath.ToSlash(rel)
	if !dir {
		key = pathspec.KeyOf(rel, w.opts.WithExtension)
	}
	if w.opts.Target == "" {
		return key
	}
	return path.Join(w.opts.Target, key)
}

// retry repeats op while it fails with a transient remote error.
func retry(ctx context.Context, opts Options, op func() (model.Action, error)) (model.Action, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.RetryInterval

	return backoff.Retry(ctx, func() (model.Action, error) {
		action, err := op()
		if err != nil && !remote.IsTransient(err) {
			return action, backoff.Permanent(err)
		}
		if err != nil {
			logger.Log.Warn("remote unavailable, retrying",
				zap.Error(err))
		}
		return action, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(opts.MaxRetries))
}
