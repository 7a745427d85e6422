package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"propsync/internal/daemon"
	"propsync/internal/logger"
	"propsync/internal/model"
	"propsync/internal/syncer"
	"propsync/internal/watcher"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync <dir> [target]",
	Short: "Publish a folder and keep publishing its changes",
	Long: `Sync takes ownership of a folder: every file in it is published, then
the folder is watched and each create, change or delete is applied to the
remote under target (by default the folder's own key) until interrupted or
stopped with 'propsync stop'.`,
	Args: usageArgs(cobra.RangeArgs(1, 2)),
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	s, err := openSession(ctx, cfg.ConflictStrategy)
	if err != nil {
		return err
	}
	defer s.Close()

	spec, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	if !spec.IsDir() || spec.IsPattern() {
		return &UsageError{Err: fmt.Errorf("%s is not a directory", args[0])}
	}

	root := spec.LocalBase()
	target := strings.TrimSuffix(spec.RemotePattern, "/**")
	if len(args) == 2 {
		target = strings.Trim(args[1], "/")
	}

	// a fresh session owns the whole folder
	s.registry.RemoveFolder(root + string(os.PathSeparator))

	s.spinner.Start("publishing " + args[0])
	initial, err := s.orch.Publish(ctx, spec, syncer.PublishOptions{})
	s.spinner.Stop()
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", args[0], err)
	}
	fmt.Printf("%s: %s\n", args[0], initial)

	state := daemon.NewSessionState(root, target)
	srv := daemon.NewServer(state, s.history, cfg.DaemonPort)
	srv.Start()

	w, err := watcher.New(s.orch, watcher.Options{
		Root:          root,
		Target:        target,
		WithExtension: cfg.DeployWithExtension,
		IgnoreList:    cfg.IgnoreList,
		Debounce:      cfg.Debounce,
	})
	if err != nil {
		return err
	}
	w.OnResult(func(result model.SyncResult) {
		state.RecordResult(result)
		if err := s.history.Save(result); err != nil {
			logger.Log.Warn("failed to save history",
				zap.Error(err))
		}
	})

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-srv.StopCh():
			logger.Log.Info("stop requested via API")
			cancel()
		case <-watchCtx.Done():
		}
	}()

	logger.Log.Info("propsync sync started",
		zap.String("root", root),
		zap.String("target", target),
		zap.Int("port", cfg.DaemonPort))

	runErr := w.Run(watchCtx)

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Log.Warn("failed to stop daemon server",
			zap.Error(err))
	}

	return runErr
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
