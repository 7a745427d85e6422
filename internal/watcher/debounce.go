package watcher

import (
	"context"
	"sort"
	"time"

	"propsync/internal/model"
)

type pending struct {
	event model.FileEvent
	due   time.Time
	seq   uint64
}

// debounce holds each path until it has been quiet for delay and then emits
// its latest event. Paths are released in the order they became due. All
// pending events are flushed when in closes.
func debounce(ctx context.Context, in <-chan model.FileEvent, delay time.Duration) <-chan model.FileEvent {
	out := make(chan model.FileEvent, cap(in))

	go func() {
		defer close(out)

		waiting := make(map[string]*pending)
		var seq uint64

		timer := time.NewTimer(delay)
		timer.Stop()

		release := func(all bool) bool {
			now := time.Now()
			var ready []*pending
			for path, p := range waiting {
				if all || !p.due.After(now) {
					ready = append(ready, p)
					delete(waiting, path)
				}
			}
			sort.Slice(ready, func(i, j int) bool {
				if ready[i].due.Equal(ready[j].due) {
					return ready[i].seq < ready[j].seq
				}
				return ready[i].due.Before(ready[j].due)
			})

			for _, p := range ready {
				select {
				case out <- p.event:
				case <-ctx.Done():
					return false
				}
			}
			return true
		}

		rearm := func() {
			var next time.Time
			for _, p := range waiting {
				if next.IsZero() || p.due.Before(next) {
					next = p.due
				}
			}
			if !next.IsZero() {
				timer.Reset(time.Until(next))
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-in:
				if !ok {
					timer.Stop()
					release(true)
					return
				}

				seq++
				p := &pending{event: event, due: time.Now().Add(delay), seq: seq}
				if prev, ok := waiting[event.Path]; ok && prev.event.IsDir {
					p.event.IsDir = true
				}
				waiting[event.Path] = p
				rearm()

			case <-timer.C:
				if !release(false) {
					return
				}
				rearm()
			}
		}
	}()

	return out
}
