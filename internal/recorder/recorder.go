// Package recorder captures raw voice takes from an audio device.
//
// A take runs until the user releases the record gesture, the silence
// detector trips, or the hard duration ceiling is hit. Every take terminates
// with exactly one event: Finished carrying the [voice.Take], Cancelled, or
// Failed. Cancelled and Failed takes leave nothing on disk.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voxwire/voxwire/internal/config"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/pkg/audio"
	"github.com/voxwire/voxwire/pkg/voice"
)

// ErrBusy is returned by [Recorder.Start] while a take is already running.
var ErrBusy = errors.New("recorder: recording already in progress")

// ErrDeviceUnavailable is returned by [Recorder.Start] when the capture
// device cannot be acquired.
var ErrDeviceUnavailable = errors.New("recorder: capture device unavailable")

// frameDuration is the capture granularity. Silence detection and the
// duration ceiling are evaluated once per frame.
const frameDuration = 20 * time.Millisecond

// EventKind discriminates the terminal outcome of a take.
type EventKind int

const (
	// Finished means the take completed and its raw artifact is on disk.
	Finished EventKind = iota

	// Cancelled means the user abandoned the take; the partial artifact was
	// removed.
	Cancelled

	// Failed means capture broke; the partial artifact was removed.
	Failed
)

// Event is the single terminal notification of a take.
type Event struct {
	Kind EventKind

	// Take is set when Kind is [Finished].
	Take voice.Take

	// Err is set when Kind is [Failed].
	Err error
}

// Recorder opens capture sessions on a [Device] and drives them to
// completion. It allows one active take at a time and is safe for concurrent
// use.
type Recorder struct {
	device  Device
	cfg     config.RecordingConfig
	tempDir string
	metrics *observe.Metrics

	mu     sync.Mutex
	active *Recording
}

// New creates a recorder writing raw takes into tempDir.
func New(device Device, cfg config.RecordingConfig, tempDir string) (*Recorder, error) {
	if device == nil {
		return nil, fmt.Errorf("recorder: device must not be nil")
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create temp dir: %w", err)
	}
	return &Recorder{
		device:  device,
		cfg:     cfg,
		tempDir: tempDir,
		metrics: observe.DefaultMetrics(),
	}, nil
}

// Recording reports whether a take is currently being captured.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Start begins a new take. It returns [ErrBusy] while another take is still
// running. The returned [Recording] delivers exactly one terminal event on
// its Done channel.
func (r *Recorder) Start(ctx context.Context) (*Recording, error) {
	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return nil, ErrBusy
	}

	id := uuid.NewString()
	path := filepath.Join(r.tempDir, "take-"+id+".wav")

	session, err := r.device.Start(ctx, DeviceConfig{
		Name:       r.cfg.Device,
		SampleRate: r.cfg.SampleRate,
	})
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	w, err := audio.NewWAVWriter(path, r.cfg.SampleRate, 1)
	if err != nil {
		r.mu.Unlock()
		_ = session.Close()
		return nil, fmt.Errorf("recorder: create take file: %w", err)
	}

	rec := &Recording{
		id:        id,
		path:      path,
		session:   session,
		done:      make(chan Event, 1),
		startedAt: time.Now(),
	}
	r.active = rec
	r.mu.Unlock()

	r.metrics.ActiveRecordings.Add(ctx, 1)
	slog.Info("recorder: take started", "take_id", id, "device", r.cfg.Device)

	go r.captureLoop(ctx, rec, w)
	return rec, nil
}

// captureLoop reads frames until a stop reason appears, then finalizes the
// take and emits its terminal event.
func (r *Recorder) captureLoop(ctx context.Context, rec *Recording, w *audio.WAVWriter) {
	defer func() {
		r.mu.Lock()
		r.active = nil
		r.mu.Unlock()
		r.metrics.ActiveRecordings.Add(ctx, -1)
	}()

	frameBytes := r.cfg.SampleRate / int(time.Second/frameDuration) * 2
	buf := make([]byte, frameBytes)

	var (
		elapsed      time.Duration
		silentStreak time.Duration
		autoStopped  bool
	)
	silenceWindow := time.Duration(r.cfg.SilenceDuration * float64(time.Second))
	maxDuration := time.Duration(r.cfg.MaxDuration) * time.Second

	var captureErr error
	for {
		if reason := rec.reason.Load(); reason != reasonNone {
			break
		}

		n, err := io.ReadFull(rec.session, buf)
		frame := audio.Frame{
			Data:       buf[:n],
			SampleRate: r.cfg.SampleRate,
			Channels:   1,
			Timestamp:  elapsed,
		}
		if n > 0 {
			if werr := w.Write(frame.Data); werr != nil {
				captureErr = fmt.Errorf("recorder: write take: %w", werr)
				rec.reason.CompareAndSwap(reasonNone, reasonFailed)
				break
			}
			elapsed += frame.Duration()
		}
		if err != nil {
			// A read error after Stop or Cancel closed the session is the
			// expected unblocking path.
			if rec.reason.Load() == reasonNone {
				captureErr = fmt.Errorf("recorder: capture: %w", err)
				rec.reason.CompareAndSwap(reasonNone, reasonFailed)
			}
			break
		}

		if r.cfg.SilenceDetection {
			if frame.Peak() < r.cfg.SilenceThreshold {
				silentStreak += frameDuration
			} else {
				silentStreak = 0
			}
			if silentStreak >= silenceWindow {
				autoStopped = true
				rec.reason.CompareAndSwap(reasonNone, reasonStopped)
				break
			}
		}
		if elapsed >= maxDuration {
			autoStopped = true
			rec.reason.CompareAndSwap(reasonNone, reasonStopped)
			break
		}
	}

	_ = rec.session.Close()
	closeErr := w.Close()

	switch rec.reason.Load() {
	case reasonStopped:
		if closeErr != nil {
			r.fail(rec, fmt.Errorf("recorder: finalize take: %w", closeErr))
			return
		}
		take := voice.Take{
			ID:          rec.id,
			Path:        rec.path,
			Duration:    int((elapsed + time.Second/2) / time.Second),
			AutoStopped: autoStopped,
			CreatedAt:   rec.startedAt,
		}
		r.metrics.RecordingDuration.Record(ctx, elapsed.Seconds())
		slog.Info("recorder: take finished",
			"take_id", rec.id, "duration", take.Duration, "auto_stopped", autoStopped)
		rec.emit(Event{Kind: Finished, Take: take})

	case reasonCancelled:
		if err := os.Remove(rec.path); err != nil && !os.IsNotExist(err) {
			slog.Warn("recorder: removing cancelled take failed", "take_id", rec.id, "err", err)
		}
		slog.Info("recorder: take cancelled", "take_id", rec.id)
		rec.emit(Event{Kind: Cancelled})

	default:
		r.fail(rec, captureErr)
	}
}

func (r *Recorder) fail(rec *Recording, err error) {
	if err == nil {
		err = errors.New("recorder: capture ended unexpectedly")
	}
	if rmErr := os.Remove(rec.path); rmErr != nil && !os.IsNotExist(rmErr) {
		slog.Warn("recorder: removing failed take", "take_id", rec.id, "err", rmErr)
	}
	slog.Error("recorder: take failed", "take_id", rec.id, "err", err)
	rec.emit(Event{Kind: Failed, Err: err})
}

// Stop reasons, stored in Recording.reason.
const (
	reasonNone int32 = iota
	reasonStopped
	reasonCancelled
	reasonFailed
)

// Recording is the handle of one active take.
type Recording struct {
	id        string
	path      string
	session   Session
	startedAt time.Time

	reason   atomic.Int32
	done     chan Event
	emitOnce sync.Once
}

// ID returns the take identifier.
func (rec *Recording) ID() string { return rec.id }

// Done delivers the single terminal event of this take.
func (rec *Recording) Done() <-chan Event { return rec.done }

// Stop ends capture and finalizes the take. Calling it after the take already
// terminated has no effect.
func (rec *Recording) Stop() {
	if rec.reason.CompareAndSwap(reasonNone, reasonStopped) {
		_ = rec.session.Close()
	}
}

// Cancel ends capture and discards the partial artifact.
func (rec *Recording) Cancel() {
	if rec.reason.CompareAndSwap(reasonNone, reasonCancelled) {
		_ = rec.session.Close()
	}
}

func (rec *Recording) emit(e Event) {
	rec.emitOnce.Do(func() {
		rec.done <- e
		close(rec.done)
	})
}
