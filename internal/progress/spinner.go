// Package progress draws a one-line spinner on a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

var frames = []string{"|", "/", "-", "\\"}

const interval = 120 * time.Millisecond

type Spinner struct {
	w       io.Writer
	enabled bool

	mu    sync.Mutex
	label string
	done  int64
	total int64
	frame int

	stop    chan struct{}
	stopped chan struct{}
}

// New writes to stderr and is silent unless stderr is a terminal.
func New() *Spinner {
	fd := os.Stderr.Fd()
	return NewWriter(os.Stderr, isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
}

func NewWriter(w io.Writer, enabled bool) *Spinner {
	return &Spinner{w: w, enabled: enabled}
}

func (s *Spinner) Enabled() bool {
	return s.enabled
}

func (s *Spinner) Start(label string) {
	s.mu.Lock()
	s.label = label
	s.done, s.total = 0, 0
	running := s.stop != nil
	if s.enabled && !running {
		s.stop = make(chan struct{})
		s.stopped = make(chan struct{})
	}
	s.mu.Unlock()

	if s.enabled && !running {
		go s.loop(s.stop, s.stopped)
	}
}

// Update sets the byte progress shown after the label. It has the signature
// of transfer.ProgressFunc.
func (s *Spinner) Update(done, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done, s.total = done, total
}

func (s *Spinner) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = label
}

// Stop clears the line and waits for the drawing goroutine to exit.
func (s *Spinner) Stop() {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-stopped
	_, _ = fmt.Fprint(s.w, "\r\033[K")
}

func (s *Spinner) loop(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.draw()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.draw()
		}
	}
}

func (s *Spinner) draw() {
	_, _ = fmt.Fprint(s.w, "\r\033[K"+s.line())
}

func (s *Spinner) line() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := frames[s.frame%len(frames)]
	s.frame++

	if s.total <= 0 {
		return fmt.Sprintf("%s %s", frame, s.label)
	}
	return fmt.Sprintf("%s %s %s / %s", frame, s.label,
		humanize.Bytes(uint64(s.done)), humanize.Bytes(uint64(s.total)))
}
