package syncer

import (
	"fmt"

	"propsync/internal/model"
)

// Session holds the counters of one command invocation and the conflict
// answer remembered across its files.
type Session struct {
	Found      int
	Created    int
	Updated    int
	Skipped    int
	Failed     int
	Deleted    int
	Downloaded int
	Partial    int
	Conflicts  int

	Remembered model.Choice
	Cancelled  bool
}

// Published counts files that reached the remote.
func (s *Session) Published() int {
	return s.Created + s.Updated
}

func (s *Session) count(action model.Action) {
	switch action {
	case model.ActionCreate:
		s.Created++
	case model.ActionUpdate:
		s.Updated++
	case model.ActionSkip:
		s.Skipped++
	case model.ActionDelete:
		s.Deleted++
	case model.ActionDownload:
		s.Downloaded++
	}
}

func (s *Session) String() string {
	return fmt.Sprintf("found %d, published %d (created %d, updated %d), downloaded %d, partial %d, deleted %d, skipped %d, conflicts %d, failed %d",
		s.Found, s.Published(), s.Created, s.Updated, s.Downloaded, s.Partial, s.Deleted, s.Skipped, s.Conflicts, s.Failed)
}

// Recorder persists per-file outcomes, typically the history table.
type Recorder interface {
	Save(result model.SyncResult) error
}
