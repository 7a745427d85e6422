package conflict

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"propsync/internal/logger"
	"propsync/internal/model"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type Decision int

const (
	Overwrite Decision = iota
	Skip
	Cancel
)

func (d Decision) String() string {
	switch d {
	case Overwrite:
		return "overwrite"
	case Skip:
		return "skip"
	default:
		return "cancel"
	}
}

var ErrNoPrompter = errors.New("conflict strategy ASK needs an interactive prompter")

// Options are the answers offered by the ASK strategy, in prompt order.
var Options = []model.Choice{
	model.ChoiceYes,
	model.ChoiceYesAll,
	model.ChoiceNo,
	model.ChoiceNoAll,
	model.ChoiceCancel,
}

// Prompter asks the user to pick one of options and returns its index.
type Prompter interface {
	Choose(question string, options []string) (int, error)
}

type Resolver struct {
	strategy model.ConflictStrategy
	prompter Prompter
	fs       afero.Fs
	now      func() time.Time
}

func NewResolver(fs afero.Fs, strategy model.ConflictStrategy, prompter Prompter) *Resolver {
	if strategy == "" {
		strategy = model.StrategyAsk
	}

	return &Resolver{
		strategy: strategy,
		prompter: prompter,
		fs:       fs,
		now:      time.Now,
	}
}

// Detect compares a local file with the remote timestamp at second
// precision. It returns nil when the file is missing or both sides agree.
func (r *Resolver) Detect(localPath, remoteKey string, remoteMillis int64) (*model.ConflictInfo, error) {
	info, err := r.fs.Stat(localPath)
	if err != nil {
		return nil, nil // nothing to overwrite
	}
	if info.IsDir() {
		return nil, fmt.Errorf("local path %s is a directory", localPath)
	}

	local := info.ModTime()
	if local.Unix() == remoteMillis/1000 {
		return nil, nil
	}

	return &model.ConflictInfo{
		Path:          localPath,
		RemoteKey:     remoteKey,
		LocalModTime:  local,
		RemoteModTime: time.UnixMilli(remoteMillis),
		Strategy:      r.strategy,
	}, nil
}

// Resolve decides whether the remote version replaces the local file.
// remembered carries a yes-all/no-all answer across one session.
func (r *Resolver) Resolve(conflict *model.ConflictInfo, remembered *model.Choice) (Decision, error) {
	logger.Log.Warn("conflict detected",
		zap.String("path", conflict.Path),
		zap.String("strategy", string(r.strategy)),
		zap.Time("local_mod", conflict.LocalModTime),
		zap.Time("remote_mod", conflict.RemoteModTime))

	switch r.strategy {
	case model.StrategyAsk:
		return r.ask(conflict, remembered)

	case model.StrategyOverwrite:
		return Overwrite, nil

	case model.StrategySkip:
		logger.Log.Info("conflict skipped",
			zap.String("path", conflict.Path))
		return Skip, nil

	case model.StrategyNewerWins:
		return r.resolveNewerWins(conflict), nil

	case model.StrategyBackup:
		if err := r.backup(conflict); err != nil {
			return Cancel, err
		}
		return Overwrite, nil

	default:
		return Cancel, fmt.Errorf("unknown strategy: %s", r.strategy)
	}
}

func (r *Resolver) ask(conflict *model.ConflictInfo, remembered *model.Choice) (Decision, error) {
	switch *remembered {
	case model.ChoiceYesAll:
		return Overwrite, nil
	case model.ChoiceNoAll:
		return Skip, nil
	}

	if r.prompter == nil {
		return Cancel, ErrNoPrompter
	}

	labels := make([]string, len(Options))
	for i, o := range Options {
		labels[i] = o.String()
	}

	question := fmt.Sprintf("%s was modified locally (%s) and remotely (%s). Overwrite it?",
		conflict.Path,
		conflict.LocalModTime.Format(time.DateTime),
		conflict.RemoteModTime.Format(time.DateTime))

	idx, err := r.prompter.Choose(question, labels)
	if err != nil {
		return Cancel, fmt.Errorf("failed to read answer: %w", err)
	}
	if idx < 0 || idx >= len(Options) {
		return Cancel, fmt.Errorf("answer %d out of range", idx)
	}

	choice := Options[idx]
	switch choice {
	case model.ChoiceYesAll, model.ChoiceNoAll:
		*remembered = choice
	}

	switch choice {
	case model.ChoiceYes, model.ChoiceYesAll:
		return Overwrite, nil
	case model.ChoiceNo, model.ChoiceNoAll:
		return Skip, nil
	default:
		return Cancel, nil
	}
}

func (r *Resolver) resolveNewerWins(conflict *model.ConflictInfo) Decision {
	if conflict.RemoteModTime.After(conflict.LocalModTime) {
		logger.Log.Info("conflict resolved: remote wins (newer)",
			zap.String("path", conflict.Path))
		return Overwrite
	}

	logger.Log.Info("conflict resolved: local wins (newer)",
		zap.String("path", conflict.Path))
	return Skip
}

func (r *Resolver) backup(conflict *model.ConflictInfo) error {
	path := conflict.Path
	timestamp := r.now().Format("20060102_150405")
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	backupPath := fmt.Sprintf("%s.conflict_%s%s", base, timestamp, ext)

	if err := r.fs.Rename(path, backupPath); err != nil {
		return fmt.Errorf("failed to backup %s: %w", path, err)
	}

	conflict.BackupPath = backupPath
	logger.Log.Info("conflict backup created",
		zap.String("original", path),
		zap.String("backup", backupPath))

	return nil
}

func (r *Resolver) Strategy() model.ConflictStrategy {
	return r.strategy
}
