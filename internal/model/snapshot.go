package model

import "time"

type SessionSnapshot struct {
	Root      string     `json:"root"`
	Target    string     `json:"target"`
	StartedAt time.Time  `json:"started_at"`
	Synced    int        `json:"synced"`
	Deleted   int        `json:"deleted"`
	Failed    int        `json:"failed"`
	LastSync  *time.Time `json:"last_sync"`
	LastError string     `json:"last_error,omitempty"`
}
