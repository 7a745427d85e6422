package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"propsync/internal/model"
	"propsync/internal/pathspec"
)

// Delete removes the remote keys selected by spec and forgets their local
// files in the registry. Local files are kept.
func (o *Orchestrator) Delete(ctx context.Context, spec pathspec.PathSpec) (*Session, error) {
	s := &Session{}
	pattern := spec.RemotePattern

	base, tree := strings.CutSuffix(pattern, "/**")
	switch {
	case tree && !strings.Contains(base, "*"):
		s.Found++
		localDir := spec.LocalBase()
		if err := o.deleteRemote(ctx, s, pattern, localDir); err != nil {
			return s, err
		}
		o.registry.RemoveFolder(localDir + string(os.PathSeparator))

	case spec.IsPattern() || spec.IsDir():
		props, err := o.api.List(ctx, spec.RemoteGlob())
		if err != nil {
			return s, err
		}
		for _, p := range props {
			if err := ctx.Err(); err != nil {
				return s, err
			}
			s.Found++
			local := o.localTarget(p)
			if err := o.deleteRemote(ctx, s, p.Key, local); err != nil {
				return s, err
			}
			o.registry.Remove(local)
		}

	default:
		s.Found++
		local := filepath.FromSlash(spec.LocalPattern)
		if err := o.deleteRemote(ctx, s, pattern, local); err != nil {
			return s, err
		}
		o.registry.Remove(local)
	}

	if err := o.registry.Save(); err != nil {
		return s, err
	}
	return s, nil
}

func (o *Orchestrator) deleteRemote(ctx context.Context, s *Session, key, local string) error {
	result := model.SyncResult{
		Event:     model.FileEvent{Type: model.EventRemove, Path: local},
		Direction: model.DirectionPush,
		LocalPath: local,
		RemoteKey: key,
		Action:    model.ActionDelete,
	}

	if err := o.api.Delete(ctx, key); err != nil {
		s.Failed++
		result.Err = err
		o.record(result)
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	s.Deleted++
	o.record(result)
	return nil
}

// DeleteKey removes one key, or the subtree under it when recursive, on
// behalf of the watcher and persists the registry right away.
func (o *Orchestrator) DeleteKey(ctx context.Context, key string, recursive bool, localPath string) error {
	target := key
	if recursive {
		target = key + "/**"
	}

	if err := o.api.Delete(ctx, target); err != nil {
		return err
	}

	if recursive {
		o.registry.RemoveFolder(localPath + string(os.PathSeparator))
	} else {
		o.registry.Remove(localPath)
	}

	return o.registry.Save()
}
