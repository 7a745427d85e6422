package syncer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"propsync/internal/conflict"
	"propsync/internal/model"
	"propsync/internal/pathspec"
	"propsync/internal/transfer"
	"propsync/internal/util"

	"github.com/spf13/afero"
)

type GetOptions struct {
	// Force overwrites local files without conflict checks.
	Force bool
}

// Get pulls every remote property matching spec. Pulled files take the
// remote timestamp and are recorded in the registry so the next publish
// skips them.
func (o *Orchestrator) Get(ctx context.Context, spec pathspec.PathSpec, opts GetOptions) (*Session, error) {
	s := &Session{}

	props, err := o.api.List(ctx, spec.RemoteGlob())
	if err != nil {
		return s, err
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Key < props[j].Key })

	for _, p := range props {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		s.Found++

		if p.Type == model.TypeAttachment {
			err = o.pullAttachments(ctx, s, p, opts)
		} else {
			err = o.pullProperty(s, p, opts)
		}
		if err != nil {
			s.Failed++
			return s, fmt.Errorf("failed to get %s: %w", p.Key, err)
		}

		if s.Cancelled {
			break
		}
	}

	if err := o.registry.Save(); err != nil {
		return s, err
	}
	return s, nil
}

func (o *Orchestrator) pullProperty(s *Session, p model.Property, opts GetOptions) error {
	target := o.localTarget(p)
	millis := p.ModifiedMillis()

	result := model.SyncResult{
		Event:     model.FileEvent{Type: model.EventWrite, Path: target},
		Direction: model.DirectionPull,
		LocalPath: target,
		RemoteKey: p.Key,
	}

	proceed, err := o.admit(s, target, p.Key, millis, opts)
	if err != nil || !proceed {
		return err
	}

	data, err := decodeValue(p)
	if err != nil {
		return err
	}

	if err := util.AtomicWrite(o.fs, target, bytes.NewReader(data)); err != nil {
		result.Err = err
		o.record(result)
		return err
	}

	if err := o.touch(target, millis); err != nil {
		return err
	}

	s.Downloaded++
	result.Action = model.ActionDownload
	o.record(result)
	return nil
}

func (o *Orchestrator) pullAttachments(ctx context.Context, s *Session, p model.Property, opts GetOptions) error {
	atts, err := o.api.ListAttachments(ctx, p.Key, "")
	if err != nil {
		return err
	}

	folder := filepath.Dir(pathspec.LocalPath(o.opts.Home, p.Key))
	millis := p.ModifiedMillis()

	for _, a := range atts {
		target := transfer.TargetPath(a, folder)

		proceed, err := o.admit(s, target, p.Key, millis, opts)
		if err != nil {
			return err
		}
		if s.Cancelled {
			return nil
		}
		if !proceed {
			continue
		}

		result := model.SyncResult{
			Event:     model.FileEvent{Type: model.EventWrite, Path: target},
			Direction: model.DirectionPull,
			LocalPath: target,
			RemoteKey: p.Key,
		}

		res, err := o.downloader.DownloadAttachment(ctx, a, folder)
		if err != nil {
			result.Err = err
			o.record(result)
			return err
		}

		// registered even when partial so publish never sends the prefix back
		if err := o.touch(res.Path, millis); err != nil {
			return err
		}

		result.Action = model.ActionDownload
		if res.Partial {
			s.Partial++
			result.Err = fmt.Errorf("incomplete attachment %s: received %d of %d chunks", a.Name, res.Chunks, a.NumberOfChunks)
		} else {
			s.Downloaded++
		}
		o.record(result)
	}

	return nil
}

// admit decides whether target may be written. Missing files are always
// written; files whose timestamp matches the remote are skipped silently;
// anything else goes through the conflict resolver.
func (o *Orchestrator) admit(s *Session, target, key string, remoteMillis int64, opts GetOptions) (bool, error) {
	exists, err := afero.Exists(o.fs, target)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", target, err)
	}
	if !exists || opts.Force {
		return true, nil
	}

	info, err := o.resolver.Detect(target, key, remoteMillis)
	if err != nil {
		return false, err
	}
	if info == nil {
		s.Skipped++
		return false, nil
	}

	s.Conflicts++
	decision, err := o.resolver.Resolve(info, &s.Remembered)
	if err != nil {
		return false, err
	}

	switch decision {
	case conflict.Overwrite:
		return true, nil
	case conflict.Skip:
		s.Skipped++
		return false, nil
	default:
		s.Cancelled = true
		return false, nil
	}
}

func (o *Orchestrator) touch(path string, millis int64) error {
	t := time.UnixMilli(millis)
	if err := o.fs.Chtimes(path, t, t); err != nil {
		return fmt.Errorf("failed to set mtime of %s: %w", path, err)
	}
	o.registry.Add(path, millis)
	return nil
}

// localTarget maps a remote key to its local file. Keys are stored without
// extension, so an existing file with the same stem is preferred before an
// extension is derived from the property type.
func (o *Orchestrator) localTarget(p model.Property) string {
	base := pathspec.LocalPath(o.opts.Home, p.Key)
	if o.opts.DeployWithExtension {
		return base
	}

	if info, err := o.fs.Stat(base); err == nil && !info.IsDir() {
		return base
	}

	matches, _ := afero.Glob(o.fs, pathspec.QuoteMeta(base)+".*")
	sort.Strings(matches)
	for _, m := range matches {
		if util.IsTemp(m) || strings.HasSuffix(m, ".part") {
			continue
		}
		if strings.TrimSuffix(m, filepath.Ext(m)) == base {
			return m
		}
	}

	return base + extensionFor(p.Type)
}
