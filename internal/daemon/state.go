package daemon

import (
	"sync"
	"time"

	"propsync/internal/model"
)

// SessionState tracks the running sync session for the status endpoint.
type SessionState struct {
	mu        sync.RWMutex
	root      string
	target    string
	startedAt time.Time
	synced    int
	deleted   int
	failed    int
	lastSync  *time.Time
	lastError string
}

func NewSessionState(root, target string) *SessionState {
	return &SessionState{
		root:      root,
		target:    target,
		startedAt: time.Now(),
	}
}

func (s *SessionState) RecordResult(result model.SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSync = new(time.Now())
	switch {
	case result.Err != nil:
		s.failed++
		s.lastError = result.Err.Error()
	case result.Action == model.ActionDelete:
		s.deleted++
	case result.Action != model.ActionSkip:
		s.synced++
	}
}

func (s *SessionState) Snapshot() model.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.SessionSnapshot{
		Root:      s.root,
		Target:    s.target,
		StartedAt: s.startedAt,
		Synced:    s.synced,
		Deleted:   s.deleted,
		Failed:    s.failed,
		LastSync:  s.lastSync,
		LastError: s.lastError,
	}
}
