package model

import "time"

type ConflictStrategy string

const (
	StrategyAsk       ConflictStrategy = "ASK"
	StrategyOverwrite ConflictStrategy = "OVERWRITE"
	StrategySkip      ConflictStrategy = "SKIP"
	StrategyNewerWins ConflictStrategy = "NEWER_WINS"
	StrategyBackup    ConflictStrategy = "BACKUP"
)

func (s ConflictStrategy) Valid() bool {
	switch s {
	case StrategyAsk, StrategyOverwrite, StrategySkip, StrategyNewerWins, StrategyBackup:
		return true
	}
	return false
}

// Choice is an answer to a pull conflict. ChoiceNone means nothing has been
// remembered yet.
type Choice int

const (
	ChoiceNone Choice = iota
	ChoiceYes
	ChoiceYesAll
	ChoiceNo
	ChoiceNoAll
	ChoiceCancel
)

func (c Choice) String() string {
	switch c {
	case ChoiceYes:
		return "yes"
	case ChoiceYesAll:
		return "yes-all"
	case ChoiceNo:
		return "no"
	case ChoiceNoAll:
		return "no-all"
	case ChoiceCancel:
		return "cancel"
	default:
		return "none"
	}
}

type ConflictInfo struct {
	Path          string
	RemoteKey     string
	LocalModTime  time.Time
	RemoteModTime time.Time
	Strategy      ConflictStrategy
	BackupPath    string
}
