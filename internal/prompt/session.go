// Package prompt turns a stream of keystrokes into image generation requests.
//
// A Session debounces text edits: every SetText restarts a quiet-period
// timer and only an uninterrupted timer promotes the text to the debounced
// value. A request is dispatched when the debounced value is non-empty and
// differs from the previous one. Each dispatch carries a sequence number and
// only the response to the latest dispatch may replace the displayed image.
package prompt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmorgan81/beamshim/internal/image"
	"github.com/dmorgan81/beamshim/internal/log"
)

const DefaultWindow = 500 * time.Millisecond

var errNoResult = errors.New("generator returned no result")

type Timer interface {
	Stop() bool
}

type Clock interface {
	AfterFunc(time.Duration, func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Update describes the outcome of the latest dispatched request.
type Update struct {
	Seq    uint64
	Prompt string
	Image  string
	Err    error
}

type Option func(*Session)

func WithWindow(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.window = d
		}
	}
}

func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithObserver registers fn to be called, outside the session lock, after
// every dispatch and every accepted response.
func WithObserver(fn func(Update)) Option {
	return func(s *Session) { s.observer = fn }
}

type Session struct {
	generator image.Generator
	window    time.Duration
	clock     Clock
	observer  func(Update)

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	text      string
	debounced string
	timer     Timer
	tick      uint64
	seq       uint64
	answered  uint64
	image     string
	err       error
	closed    bool
	inflight  sync.WaitGroup
}

func NewSession(ctx context.Context, generator image.Generator, opts ...Option) *Session {
	s := &Session{
		generator: generator,
		window:    DefaultWindow,
		clock:     realClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	return s
}

// SetText records an edit and restarts the debounce timer.
func (s *Session) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.text = text
	if s.timer != nil {
		s.timer.Stop()
	}
	s.tick++
	tick := s.tick
	s.timer = s.clock.AfterFunc(s.window, func() { s.settle(tick, text) })
}

// settle runs when a timer fires. A timer that was superseded after it had
// already fired is recognised by its tick and ignored.
func (s *Session) settle(tick uint64, text string) {
	s.mu.Lock()
	if s.closed || tick != s.tick {
		s.mu.Unlock()
		return
	}
	s.timer = nil

	previous := s.debounced
	s.debounced = text
	if text == "" || text == previous {
		s.mu.Unlock()
		return
	}

	s.seq++
	seq := s.seq
	s.inflight.Add(1)
	s.mu.Unlock()

	log.FromContextOrDiscard(s.ctx).WithGroup("session").Debug("dispatching", "seq", seq, "prompt", text)
	s.notify(Update{Seq: seq, Prompt: text})
	go s.dispatch(seq, text)
}

func (s *Session) dispatch(seq uint64, text string) {
	defer s.inflight.Done()
	logger := log.FromContextOrDiscard(s.ctx).WithGroup("session").With("seq", seq, "prompt", text)

	res := s.generator.Generate(s.ctx, text)

	s.mu.Lock()
	if seq != s.seq {
		latest := s.seq
		s.mu.Unlock()
		logger.Debug("discarding stale response", "latest", latest)
		return
	}
	s.answered = seq

	update := Update{Seq: seq, Prompt: text}
	switch r := res.(type) {
	case image.Success:
		s.image = r.Image
		s.err = nil
	case image.Failure:
		s.err = r
	default:
		s.err = errNoResult
	}
	update.Image, update.Err = s.image, s.err
	s.mu.Unlock()

	if update.Err != nil {
		logger.Error("image generation failed", "error", update.Err)
	} else {
		logger.Info("image updated")
	}
	s.notify(update)
}

func (s *Session) notify(u Update) {
	if s.observer != nil {
		s.observer(u)
	}
}

func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

func (s *Session) Debounced() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debounced
}

// Image is the reference currently displayed, or "" before the first success.
func (s *Session) Image() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// Err is the failure of the latest answered request, if it failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Seq is the sequence number of the latest dispatched request.
func (s *Session) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Pending reports whether the latest dispatched request is still unanswered.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answered != s.seq
}

// Wait blocks until every dispatched request has returned.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// Close stops the pending timer, cancels in-flight requests and waits for
// them to return.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.cancel()
	s.inflight.Wait()
}
