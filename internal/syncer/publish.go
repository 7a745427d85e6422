package syncer

import (
	"context"
	"fmt"
	"path/filepath"

	"propsync/internal/model"
	"propsync/internal/pathspec"
	"propsync/internal/transfer"
)

type PublishOptions struct {
	// Force publishes files the registry considers unchanged.
	Force bool
}

// Publish pushes every changed file matching spec. A remote error aborts the
// pass before the registry is saved, so the next run retries those files.
func (o *Orchestrator) Publish(ctx context.Context, spec pathspec.PathSpec, opts PublishOptions) (*Session, error) {
	s := &Session{}

	files, err := o.Enumerate(spec)
	if err != nil {
		return s, err
	}

	for _, file := range files {
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

		if err := o.normalizeAppConfig(file); err != nil {
			return s, err
		}

		info, err := o.fs.Stat(file)
		if err != nil {
			return s, fmt.Errorf("failed to stat %s: %w", file, err)
		}

		if !o.registry.Add(file, info.ModTime().UnixMilli()) && !opts.Force {
			s.Skipped++
			result.Action = model.ActionSkip
			o.record(result)
			continue
		}

		action, err := o.push(ctx, file, key, false)
		if err != nil {
			s.Failed++
			result.Err = err
			o.record(result)
			return s, fmt.Errorf("failed to publish %s: %w", file, err)
		}

		s.count(action)
		result.Action = action
		o.record(result)
	}

	if err := o.registry.Save(); err != nil {
		return s, err
	}
	return s, nil
}

// PushFile publishes one file on behalf of the watcher and persists the
// registry right away.
func (o *Orchestrator) PushFile(ctx context.Context, file, key string) (model.Action, error) {
	if err := o.normalizeAppConfig(file); err != nil {
		return "", err
	}

	info, err := o.fs.Stat(file)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", file, err)
	}

	if !o.registry.Add(file, info.ModTime().UnixMilli()) {
		return model.ActionSkip, nil
	}

	action, err := o.push(ctx, file, key, false)
	if err != nil {
		// forget the file so it stays dirty for the next pass
		o.registry.Remove(file)
		return "", err
	}

	if err := o.registry.Save(); err != nil {
		return action, err
	}
	return action, nil
}

func (o *Orchestrator) push(ctx context.Context, file, key string, bulk bool) (model.Action, error) {
	c, err := o.readContent(file)
	if err != nil {
		return "", err
	}

	if c.Chunked {
		res, err := o.uploader.UploadFile(ctx, file, key, transfer.Metadata{Name: filepath.Base(file), Bulk: bulk})
		if err != nil {
			return "", err
		}
		if res.Created {
			return model.ActionCreate, nil
		}
		return model.ActionUpdate, nil
	}

	res, err := o.api.Put(ctx, model.PutRequest{
		Key:           key,
		Value:         c.Value,
		Type:          c.Type,
		ExistStrategy: model.ExistOverwrite,
		Bulk:          bulk,
	})
	if err != nil {
		return "", err
	}

	switch res {
	case model.PutCreate:
		return model.ActionCreate, nil
	case model.PutSkip:
		return model.ActionSkip, nil
	default:
		return model.ActionUpdate, nil
	}
}
