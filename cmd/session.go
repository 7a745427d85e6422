package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"propsync/internal/conflict"
	"propsync/internal/db"
	"propsync/internal/logger"
	"propsync/internal/model"
	"propsync/internal/pathspec"
	"propsync/internal/progress"
	"propsync/internal/registry"
	"propsync/internal/remote"
	"propsync/internal/repository"
	"propsync/internal/syncer"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// session wires one command invocation: the locked registry, the remote
// client and the orchestrator on top of them.
type session struct {
	fs       afero.Fs
	registry *registry.Registry
	orch     *syncer.Orchestrator
	history  *repository.HistoryRepository
	spinner  *progress.Spinner
}

func newRemoteClient(ctx context.Context) *remote.Client {
	return remote.NewClient(remote.ClientOptions{
		BaseURL: cfg.RemoteURL,
		Timeout: cfg.RequestTimeout,
		TokenSource: remote.NewTokenSource(ctx, remote.AuthConfig{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Token:        cfg.Token,
		}),
	})
}

func openSession(ctx context.Context, strategy model.ConflictStrategy) (*session, error) {
	reg := registry.New(cfg.Home)
	if err := reg.Load(); err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()
	resolver := conflict.NewResolver(fs, strategy, conflict.NewStdinPrompter(os.Stdin, os.Stdout))

	orch := syncer.New(newRemoteClient(ctx), fs, reg, resolver, syncer.Options{
		Home:                cfg.Home,
		DeployWithExtension: cfg.DeployWithExtension,
		InlineThreshold:     cfg.InlineThreshold,
		ChunkSize:           cfg.ChunkSize,
	})

	history := repository.NewHistoryRepository(db.DB)
	orch.SetRecorder(history)

	spinner := progress.New()
	orch.OnProgress(spinner.Update)

	return &session{
		fs:       fs,
		registry: reg,
		orch:     orch,
		history:  history,
		spinner:  spinner,
	}, nil
}

func (s *session) resolve(arg string) (pathspec.PathSpec, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return pathspec.PathSpec{}, fmt.Errorf("failed to get working dir: %w", err)
	}
	if !filepath.IsAbs(arg) && !isWithin(cfg.Home, cwd) {
		cwd = cfg.Home
	}

	return pathspec.NewResolver(s.fs, cfg.DeployWithExtension).Resolve(arg, cwd, cfg.Home)
}

func (s *session) Close() {
	s.spinner.Stop()
	if err := s.registry.Close(); err != nil {
		logger.Log.Warn("failed to release registry lock",
			zap.Error(err))
	}
}

func isWithin(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(os.PathSeparator))
}
