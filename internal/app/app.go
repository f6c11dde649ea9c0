// Package app wires all voxwire subsystems into a running client.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the update dispatch loop, and Shutdown tears
// everything down in order. The record gesture API (PressRecord,
// ReleaseRecord, CancelRecord) is the hands-free surface the UI layer calls.
//
// For testing, inject mock implementations via functional options
// (WithClient, WithDevice, WithConverter). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxwire/voxwire/internal/auth"
	"github.com/voxwire/voxwire/internal/chats"
	"github.com/voxwire/voxwire/internal/codec"
	"github.com/voxwire/voxwire/internal/config"
	"github.com/voxwire/voxwire/internal/notify"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/recorder"
	"github.com/voxwire/voxwire/internal/send"
	"github.com/voxwire/voxwire/internal/transport"
	"github.com/voxwire/voxwire/internal/transport/wire"
)

// ErrNotReady is returned by PressRecord while the session is not
// authenticated.
var ErrNotReady = errors.New("app: session not ready")

// ErrSendInFlight is returned by PressRecord when a send attempt is in flight
// and the interrupt policy is "reject".
var ErrSendInFlight = errors.New("app: send attempt in flight")

// Preload limits for the chat projection.
const (
	chatListLimit    = 50
	chatHistoryLimit = 100
)

// CueKind discriminates user-facing cues.
type CueKind string

const (
	// CueRecordStart pulses when capture begins. Emitted only when haptics
	// are enabled.
	CueRecordStart CueKind = "recordStart"

	// CueRecordStop pulses when capture ends. Emitted only when haptics are
	// enabled.
	CueRecordStop CueKind = "recordStop"

	// CueAutoStopped announces that silence detection or the duration
	// ceiling ended the take.
	CueAutoStopped CueKind = "autoStopped"

	// CueClipReady announces a downloaded voice clip ready to play. Info
	// holds the local path.
	CueClipReady CueKind = "clipReady"

	// CueSent announces a message accepted by the backend. Info holds the
	// message ID.
	CueSent CueKind = "sent"

	// CueSendFailed announces a failed attempt parked for retry. Info holds
	// the failure reason.
	CueSendFailed CueKind = "sendFailed"
)

// Cue is a single user-facing notification.
type Cue struct {
	Kind CueKind
	Info string
}

// App owns all subsystem lifetimes and drives the voice message pipeline.
type App struct {
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	client    transport.Client
	session   *auth.Session
	recorder  *recorder.Recorder
	orch      *send.Orchestrator
	store     *chats.Store
	cues      *notify.Notifier[Cue]
	metrics   *observe.Metrics
	converter send.Converter
	device    recorder.Device

	mu sync.Mutex
	// rec is the active recording handle, nil when idle.
	rec *recorder.Recording

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithClient injects a transport client instead of dialing one from config.
func WithClient(c transport.Client) Option {
	return func(a *App) { a.client = c }
}

// WithDevice injects a capture device instead of creating the ffmpeg one.
func WithDevice(d recorder.Device) Option {
	return func(a *App) { a.device = d }
}

// WithConverter injects a converter instead of creating the Opus codec.
func WithConverter(c send.Converter) Option {
	return func(a *App) { a.converter = c }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		cues:    notify.New[Cue](),
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	tempDir := cfg.Client.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "voxwire")
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("app: create temp dir: %w", err)
	}
	sweepTempDir(tempDir)

	// ── 1. Transport client ──────────────────────────────────────────────
	if a.client == nil {
		downloadDir := cfg.Transport.DownloadDir
		if downloadDir == "" {
			downloadDir = filepath.Join(tempDir, "downloads")
		}
		client, err := wire.Dial(ctx, cfg.Transport.Endpoint, wire.WithDownloadDir(downloadDir))
		if err != nil {
			return nil, fmt.Errorf("app: dial backend: %w", err)
		}
		a.client = client
	}
	a.closers = append(a.closers, a.client.Close)

	// ── 2. Chat projection + auth session ────────────────────────────────
	a.store = chats.NewStore(cfg.Transport.TargetChatID)
	session, err := auth.NewSession(a.client, auth.WithOnClosed(func(reason string) {
		a.store.Reset()
	}))
	if err != nil {
		return nil, fmt.Errorf("app: create auth session: %w", err)
	}
	a.session = session

	// ── 3. Codec + recorder ──────────────────────────────────────────────
	if a.converter == nil {
		conv, err := codec.New(tempDir)
		if err != nil {
			return nil, fmt.Errorf("app: create converter: %w", err)
		}
		a.converter = conv
	}
	if a.device == nil {
		a.device = recorder.NewFFmpegDevice("", "")
	}
	rec, err := recorder.New(a.device, cfg.Recording, tempDir)
	if err != nil {
		return nil, fmt.Errorf("app: create recorder: %w", err)
	}
	a.recorder = rec

	// ── 4. Send orchestrator ─────────────────────────────────────────────
	orch, err := send.NewOrchestrator(a.client, a.converter,
		send.WithReadyGate(func() error {
			if !a.session.Ready() {
				return ErrNotReady
			}
			return nil
		}))
	if err != nil {
		return nil, fmt.Errorf("app: create orchestrator: %w", err)
	}
	a.orch = orch

	return a, nil
}

// Session returns the authentication state machine for the UI layer.
func (a *App) Session() *auth.Session { return a.session }

// Chats returns the local chat projection.
func (a *App) Chats() *chats.Store { return a.store }

// Cues returns the user-facing cue stream.
func (a *App) Cues() <-chan Cue { return a.cues.C() }

// Recording reports whether a take is currently being captured.
func (a *App) Recording() bool { return a.recorder.Recording() }

// SendBusy reports whether a send attempt is converting or sending.
func (a *App) SendBusy() bool { return a.orch.Busy() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run registers the client with the backend and dispatches its updates until
// ctx is cancelled or the update stream ends.
func (a *App) Run(ctx context.Context) error {
	if err := a.client.SetParameters(ctx, transport.Parameters{
		DeviceName: a.cfg.Transport.DeviceName,
		AppVersion: a.cfg.Transport.AppVersion,
	}); err != nil {
		return fmt.Errorf("app: set parameters: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.dispatchUpdates(ctx) })
	g.Go(func() error { return a.watchSends(ctx) })

	slog.Info("app running", "endpoint", a.cfg.Transport.Endpoint)
	return g.Wait()
}

// dispatchUpdates routes backend pushes to the owning subsystem.
func (a *App) dispatchUpdates(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-a.client.Updates():
			if !ok {
				return errors.New("app: update stream closed")
			}
			a.handleUpdate(ctx, u)
		}
	}
}

func (a *App) handleUpdate(ctx context.Context, u transport.Update) {
	switch u := u.(type) {
	case transport.AuthStateChanged:
		wasReady := a.session.Ready()
		a.session.Apply(ctx, u)
		if !wasReady && a.session.Ready() {
			if err := a.store.Preload(ctx, a.client, chatListLimit, chatHistoryLimit); err != nil {
				slog.Warn("app: chat preload failed", "err", err)
			}
		}

	case transport.NewMessage:
		if !a.store.Add(u.Message) {
			return
		}
		if u.Message.Voice != nil && a.cfg.Playback.AutoPlay {
			go a.fetchClip(ctx, u.Message.Voice.FileID)
		}

	case transport.FileDownloaded:
		a.cues.Publish(Cue{Kind: CueClipReady, Info: u.Path})

	case transport.SessionClosed:
		a.session.ApplyClosed(ctx, u)
	}
}

// fetchClip downloads an incoming voice clip and announces it.
func (a *App) fetchClip(ctx context.Context, fileID string) {
	start := time.Now()
	path, err := a.client.DownloadFile(ctx, fileID)
	if err != nil {
		a.metrics.RecordTransportError(ctx, "downloadFile")
		slog.Warn("app: voice clip download failed", "file_id", fileID, "err", err)
		return
	}
	a.metrics.DownloadDuration.Record(ctx, time.Since(start).Seconds())
	a.cues.Publish(Cue{Kind: CueClipReady, Info: path})
}

// watchSends consumes the orchestrator stream, logging every transition and
// turning the user-relevant ones into cues.
func (a *App) watchSends(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-a.orch.Updates():
			if !ok {
				return nil
			}
			switch u.Status {
			case send.StatusSent:
				slog.Info("app: message sent",
					"attempt_id", u.AttemptID, "message_id", u.Handle.MessageID)
				a.cues.Publish(Cue{Kind: CueSent, Info: u.Handle.MessageID})
			case send.StatusFailed:
				slog.Warn("app: send failed, awaiting retry or discard",
					"attempt_id", u.AttemptID, "err", u.Err)
				a.cues.Publish(Cue{Kind: CueSendFailed, Info: u.Err.Error()})
			default:
				slog.Debug("app: send attempt update",
					"attempt_id", u.AttemptID, "status", u.Status, "err", u.Err)
			}
		}
	}
}

// PendingRetry reports whether a failed attempt is parked awaiting RetrySend
// or DiscardSend.
func (a *App) PendingRetry() bool { return a.orch.Parked() }

// ─── Record gestures ─────────────────────────────────────────────────────────

// PressRecord starts capturing a take. It refuses while the session is not
// ready, while another take is being captured, or, under the "reject"
// interrupt policy, while a send attempt is in flight. Under "discard" the
// in-flight attempt is withdrawn. A parked failed attempt never blocks a new
// recording.
func (a *App) PressRecord(ctx context.Context) error {
	if !a.session.Ready() {
		return ErrNotReady
	}
	if a.orch.Busy() {
		switch a.cfg.Recording.InterruptPolicy {
		case config.InterruptDiscard:
			a.orch.Withdraw()
		default:
			return ErrSendInFlight
		}
	}

	rec, err := a.recorder.Start(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.rec = rec
	a.mu.Unlock()

	if a.cfg.Playback.Haptics {
		a.cues.Publish(Cue{Kind: CueRecordStart})
	}
	go a.awaitTake(ctx, rec)
	return nil
}

// ReleaseRecord ends the active capture and hands the take to the send
// pipeline. Releasing with no active capture is a no-op.
func (a *App) ReleaseRecord() {
	a.mu.Lock()
	rec := a.rec
	a.mu.Unlock()
	if rec != nil {
		rec.Stop()
	}
}

// CancelRecord abandons the active capture and discards the partial take.
func (a *App) CancelRecord() {
	a.mu.Lock()
	rec := a.rec
	a.mu.Unlock()
	if rec != nil {
		rec.Cancel()
	}
}

// RetrySend re-uploads the parked failed attempt.
func (a *App) RetrySend(ctx context.Context) error { return a.orch.Retry(ctx) }

// DiscardSend abandons the parked failed attempt.
func (a *App) DiscardSend(ctx context.Context) error { return a.orch.Discard(ctx) }

// awaitTake consumes the recording's terminal event and routes a finished
// take into the send pipeline.
func (a *App) awaitTake(ctx context.Context, rec *recorder.Recording) {
	e := <-rec.Done()

	a.mu.Lock()
	if a.rec == rec {
		a.rec = nil
	}
	a.mu.Unlock()

	if a.cfg.Playback.Haptics {
		a.cues.Publish(Cue{Kind: CueRecordStop})
	}

	switch e.Kind {
	case recorder.Finished:
		if e.Take.AutoStopped {
			a.cues.Publish(Cue{Kind: CueAutoStopped})
		}
		target, err := a.store.TargetChat()
		if err != nil {
			slog.Error("app: no target chat for finished take", "take_id", e.Take.ID, "err", err)
			if dErr := e.Take.Discard(); dErr != nil {
				slog.Warn("app: discarding orphaned take failed", "err", dErr)
			}
			return
		}
		if _, err := a.orch.Send(ctx, e.Take, target); err != nil {
			slog.Error("app: handing take to send pipeline failed", "take_id", e.Take.ID, "err", err)
			if dErr := e.Take.Discard(); dErr != nil {
				slog.Warn("app: discarding unsendable take failed", "err", dErr)
			}
		}

	case recorder.Cancelled:
		slog.Info("app: take cancelled")

	case recorder.Failed:
		slog.Error("app: take failed", "err", e.Err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.CancelRecord()
		a.cues.Close()

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// sweepTempDir removes stale media artifacts left behind by a previous run.
// Takes and clips never outlive their send attempt, so anything matching
// their naming pattern at startup is garbage.
func sweepTempDir(dir string) {
	for _, pattern := range []string{"take-*.wav", "clip-*.opus"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			if err := os.Remove(path); err != nil {
				slog.Warn("app: sweeping stale artifact failed", "path", path, "err", err)
			} else {
				slog.Debug("app: swept stale artifact", "path", path)
			}
		}
	}
}
