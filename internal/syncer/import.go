package syncer

import (
	"context"
	"fmt"
	"time"

	"propsync/internal/logger"
	"propsync/internal/model"
	"propsync/internal/pathspec"

	"go.uber.org/zap"
)

type ImportOptions struct {
	BatchSize int
	Sleep     time.Duration
}

// Import bulk loads every file matching spec, ignoring the registry. Files
// go out in batches separated by Sleep so the remote can absorb the load.
func (o *Orchestrator) Import(ctx context.Context, spec pathspec.PathSpec, opts ImportOptions) (*Session, error) {
	s := &Session{}

	files, err := o.Enumerate(spec)
	if err != nil {
		return s, err
	}

	batches := batch(files, opts.BatchSize)
	for i, b := range batches {
		for _, file := range b {
			if err := ctx.Err(); err != nil {
				return s, err
			}
			s.Found++

			key, err := o.remoteKey(file)
			if err != nil {
				return s, err
			}

			result := model.SyncResult{
				Event:     model.FileEvent{Type: model.EventWrite, Path: file},
				Direction: model.DirectionPush,
				LocalPath: file,
				RemoteKey: key,
			}

			action, err := o.push(ctx, file, key, true)
			if err != nil {
				s.Failed++
				result.Err = err
				o.record(result)
				return s, fmt.Errorf("failed to import %s: %w", file, err)
			}

			s.count(action)
			result.Action = action
			o.record(result)
		}

		logger.Log.Info("batch imported",
			zap.Int("batch", i+1),
			zap.Int("of", len(batches)),
			zap.Int("files", len(b)))

		if i < len(batches)-1 && opts.Sleep > 0 {
			if err := sleep(ctx, opts.Sleep); err != nil {
				return s, err
			}
		}
	}

	return s, nil
}

func batch(files []string, size int) [][]string {
	if size <= 0 {
		size = len(files)
	}

	var out [][]string
	for len(files) > 0 {
		n := min(size, len(files))
		out = append(out, files[:n])
		files = files[n:]
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
