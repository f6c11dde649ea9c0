// Package mock provides a scripted in-memory [recorder.Device] for tests.
//
// The device serves PCM from a programmed script of frames, so tests can
// shape an exact amplitude envelope: loud speech, trailing silence, or a
// stream that never goes quiet. When the script runs out the session either
// repeats the last frame forever (RepeatLast) or blocks until closed.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/voxwire/voxwire/internal/recorder"
)

// Compile-time interface assertion.
var _ recorder.Device = (*Device)(nil)

// Device is a configurable test double for [recorder.Device].
type Device struct {
	mu sync.Mutex

	// StartErr is returned by [Device.Start] when non-nil.
	StartErr error

	// Script holds the PCM frames served in order by the session.
	Script [][]byte

	// RepeatLast makes the session repeat the final script frame indefinitely
	// once the script is exhausted, simulating an open microphone. When false
	// an exhausted session blocks until closed.
	RepeatLast bool

	// StartCalls records the configs passed to Start.
	StartCalls []recorder.DeviceConfig

	// sessions holds every session handed out, for close assertions.
	sessions []*Session
}

// Start implements [recorder.Device].
func (d *Device) Start(_ context.Context, cfg recorder.DeviceConfig) (recorder.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StartCalls = append(d.StartCalls, cfg)
	if d.StartErr != nil {
		return nil, d.StartErr
	}

	s := &Session{repeatLast: d.RepeatLast}
	s.cond = sync.NewCond(&s.mu)
	for _, frame := range d.Script {
		s.pending = append(s.pending, frame...)
		s.last = frame
	}
	d.sessions = append(d.sessions, s)
	return s, nil
}

// Sessions returns all sessions handed out so far.
func (d *Device) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Session, len(d.sessions))
	copy(out, d.sessions)
	return out
}

// Session is the scripted capture stream handed out by [Device.Start].
type Session struct {
	mu   sync.Mutex
	cond *sync.Cond

	pending    []byte
	last       []byte
	repeatLast bool
	closed     bool
}

// Read implements [recorder.Session]. It serves script bytes, refilling from
// the last frame when RepeatLast is set, and returns [io.EOF] once the
// session is closed and drained.
func (s *Session) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) == 0 {
		if s.closed {
			return 0, io.EOF
		}
		if s.repeatLast && len(s.last) > 0 {
			s.pending = append(s.pending, s.last...)
			break
		}
		s.cond.Wait()
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Feed appends a frame to the script of a live session.
func (s *Session) Feed(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, frame...)
	s.last = frame
	s.cond.Broadcast()
}

// Close implements [recorder.Session]. It unblocks pending reads.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
