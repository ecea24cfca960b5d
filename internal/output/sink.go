package output

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

// Progress is the sink remote clients write their chatter to (job submitted,
// phase changes). Callers that want a quiet run wrap the call in Silence.
var Progress = NewSink(os.Stderr)

// Sink is an io.Writer that forwards to an underlying writer unless one or
// more Silence scopes are open, in which case writes are discarded. It is safe
// for concurrent use.
type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	quiet  int
	logger *log.Logger
}

// NewSink returns a Sink forwarding to w, with a logger bound to it.
func NewSink(w io.Writer) *Sink {
	s := &Sink{w: w}
	s.logger = log.NewWithOptions(s, log.Options{Prefix: "progress"})
	return s
}

// Logger returns a logger whose output goes through the sink.
func (s *Sink) Logger() *log.Logger {
	return s.logger
}

func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quiet > 0 {
		return len(p), nil
	}
	return s.w.Write(p)
}

// Silence discards everything written to the sink until the returned restore
// func is called. Scopes nest; restore is idempotent, so it is safe to defer
// it and also call it early.
func (s *Sink) Silence() (restore func()) {
	s.mu.Lock()
	s.quiet++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.quiet--
			s.mu.Unlock()
		})
	}
}

// Silenced reports whether a Silence scope is currently open.
func (s *Sink) Silenced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quiet > 0
}
