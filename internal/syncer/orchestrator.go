// Package syncer runs publish, get, delete and import passes between
// <home>/src and the remote property store.
package syncer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"propsync/internal/conflict"
	"propsync/internal/logger"
	"propsync/internal/model"
	"propsync/internal/pathspec"
	"propsync/internal/registry"
	"propsync/internal/remote"
	"propsync/internal/transfer"
	"propsync/internal/util"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type Options struct {
	Home                string
	DeployWithExtension bool
	InlineThreshold     int64
	ChunkSize           int64
}

type Orchestrator struct {
	api        remote.API
	fs         afero.Fs
	registry   *registry.Registry
	resolver   *conflict.Resolver
	uploader   *transfer.Uploader
	downloader *transfer.Downloader
	recorder   Recorder
	opts       Options
}

func New(api remote.API, fs afero.Fs, reg *registry.Registry, resolver *conflict.Resolver, opts Options) *Orchestrator {
	return &Orchestrator{
		api:        api,
		fs:         fs,
		registry:   reg,
		resolver:   resolver,
		uploader:   transfer.NewUploader(api, fs, opts.ChunkSize),
		downloader: transfer.NewDownloader(api, fs),
		opts:       opts,
	}
}

func (o *Orchestrator) SetRecorder(r Recorder) {
	o.recorder = r
}

// OnProgress reports attachment transfer progress in both directions.
func (o *Orchestrator) OnProgress(fn transfer.ProgressFunc) {
	o.uploader.OnProgress(fn)
	o.downloader.OnProgress(fn)
}

func (o *Orchestrator) srcDir() string {
	return filepath.Join(o.opts.Home, "src")
}

func (o *Orchestrator) remoteKey(file string) (string, error) {
	return pathspec.RemoteKey(o.opts.Home, file, o.opts.DeployWithExtension)
}

// Enumerate lists the regular files matching spec.LocalPattern, sorted,
// skipping dotfile segments and scratch files.
func (o *Orchestrator) Enumerate(spec pathspec.PathSpec) ([]string, error) {
	base, pattern := doublestar.SplitPattern(spec.LocalGlob())
	base = filepath.FromSlash(base)

	ok, err := afero.DirExists(o.fs, base)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", base, err)
	}
	if !ok {
		return nil, nil
	}

	fsys := afero.NewIOFS(afero.NewBasePathFs(o.fs, base))
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to expand %s: %w", spec.LocalPattern, err)
	}

	srcDir := o.srcDir()
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		full := filepath.Join(base, filepath.FromSlash(m))
		rel, err := filepath.Rel(srcDir, full)
		if err != nil || hidden(rel) || util.IsTemp(full) || strings.HasSuffix(full, ".part") {
			continue
		}
		files = append(files, full)
	}

	sort.Strings(files)
	return files, nil
}

func hidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

func (o *Orchestrator) record(result model.SyncResult) {
	if result.Err != nil {
		logger.Log.Error("sync failed",
			zap.String("direction", string(result.Direction)),
			zap.String("path", result.LocalPath),
			zap.String("key", result.RemoteKey),
			zap.Error(result.Err))
	} else if result.Action != model.ActionSkip {
		logger.Log.Info("synced",
			zap.String("direction", string(result.Direction)),
			zap.String("action", string(result.Action)),
			zap.String("path", result.LocalPath),
			zap.String("key", result.RemoteKey))
	}

	if o.recorder == nil {
		return
	}
	if err := o.recorder.Save(result); err != nil {
		logger.Log.Warn("failed to record history",
			zap.String("path", result.LocalPath),
			zap.Error(err))
	}
}
