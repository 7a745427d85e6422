package model

import "time"

type EventType string

const (
	EventCreate EventType = "CREATE"
	EventWrite  EventType = "WRITE"
	EventRemove EventType = "REMOVE"
	EventRename EventType = "RENAME"
)

type FileEvent struct {
	Type      EventType
	Path      string
	IsDir     bool
	Timestamp time.Time
}

type Direction string

const (
	DirectionPush Direction = "PUSH"
	DirectionPull Direction = "PULL"
)

type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionSkip     Action = "skip"
	ActionDelete   Action = "delete"
	ActionDownload Action = "download"
)

// SyncResult is the outcome of one file or key in a session.
type SyncResult struct {
	Event     FileEvent
	Direction Direction
	LocalPath string
	RemoteKey string
	Action    Action
	Err       error
}
