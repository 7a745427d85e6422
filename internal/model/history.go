package model

import (
	"time"

	"gorm.io/gorm"
)

type SyncStatus string

const (
	StatusSuccess SyncStatus = "SUCCESS"
	StatusFailed  SyncStatus = "FAILED"
)

type History struct {
	gorm.Model
	Direction Direction  `gorm:"not null"`
	Status    SyncStatus `gorm:"not null;index"`
	LocalPath string
	RemoteKey string
	Action    Action
	ErrMsg    string
	SyncedAt  time.Time `gorm:"not null;index"`
}
