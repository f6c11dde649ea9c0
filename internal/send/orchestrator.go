// Package send drives the voice message send pipeline: convert the finished
// take to the transport codec, upload it, and manage the retry and fallback
// paths.
//
// One attempt is in flight at a time. A failed attempt parks with its payload
// intact so a retry uploads the identical bytes; every terminal exit, sent or
// discarded, purges the take's temporary files.
package send

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/transport"
	"github.com/voxwire/voxwire/pkg/voice"
)

// ErrBusy is returned by [Orchestrator.Send] while another attempt is still
// converting or sending.
var ErrBusy = errors.New("send: attempt already in flight")

// ErrNoParkedAttempt is returned by Retry and Discard when no failed attempt
// is awaiting a decision.
var ErrNoParkedAttempt = errors.New("send: no failed attempt parked")

// Converter encodes a raw take into a transport artifact. Implemented by
// codec.Converter.
type Converter interface {
	Convert(ctx context.Context, take voice.Take) (*voice.Artifact, error)
}

// Attempt is one send of one take. Its fields are fixed at creation; the
// mutable lifecycle state lives in the orchestrator.
type Attempt struct {
	// ID uniquely identifies this attempt.
	ID string

	// Take is the recording being sent.
	Take voice.Take

	// artifact is the converted payload, nil on the fallback path.
	artifact *voice.Artifact

	// req is the frozen payload description. Retries reuse it verbatim.
	req transport.SendVoiceRequest

	// attempts counts uploads of this payload, including retries.
	attempts atomic.Int32

	withdrawn atomic.Bool
}

// Attempts returns how many uploads of the payload have been made.
func (a *Attempt) Attempts() int { return int(a.attempts.Load()) }

// Fallback reports whether the attempt carries the raw artifact because
// conversion failed.
func (a *Attempt) Fallback() bool { return a.artifact == nil }

// purge removes the attempt's files from disk.
func (a *Attempt) purge() {
	if err := a.Take.Discard(); err != nil {
		slog.Warn("send: purging take failed", "take_id", a.Take.ID, "err", err)
	}
	if err := a.artifact.Discard(); err != nil {
		slog.Warn("send: purging artifact failed", "take_id", a.Take.ID, "err", err)
	}
}

// Orchestrator runs send attempts. It is safe for concurrent use.
type Orchestrator struct {
	client  transport.Client
	convert Converter
	metrics *observe.Metrics

	// gate is consulted before each upload; a non-nil return parks the
	// attempt instead of handing an unauthenticated send to the transport.
	gate func() error

	updates chan StatusUpdate

	mu sync.Mutex
	// inflight is the attempt currently converting or sending.
	inflight *Attempt
	// parked is the failed attempt awaiting retry or discard.
	parked *Attempt
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithUpdateBuffer sets the capacity of the status update channel. The
// default is 16.
func WithUpdateBuffer(n int) Option {
	return func(o *Orchestrator) { o.updates = make(chan StatusUpdate, n) }
}

// WithReadyGate installs a check run before every upload, typically bound to
// the authentication session. A failing gate parks the attempt for retry.
func WithReadyGate(gate func() error) Option {
	return func(o *Orchestrator) { o.gate = gate }
}

// NewOrchestrator creates an orchestrator sending through client.
func NewOrchestrator(client transport.Client, convert Converter, opts ...Option) (*Orchestrator, error) {
	if client == nil || convert == nil {
		return nil, fmt.Errorf("send: client and converter must not be nil")
	}
	o := &Orchestrator{
		client:  client,
		convert: convert,
		metrics: observe.DefaultMetrics(),
		updates: make(chan StatusUpdate, 16),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Updates returns the stream of attempt transitions. Updates are dropped when
// the consumer falls behind the channel capacity.
func (o *Orchestrator) Updates() <-chan StatusUpdate {
	return o.updates
}

// Busy reports whether an attempt is currently converting or sending.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inflight != nil
}

// Parked reports whether a failed attempt is awaiting retry or discard.
// Parked attempts do not block new recordings or new sends.
func (o *Orchestrator) Parked() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.parked != nil
}

// Send starts an attempt for the finished take. It returns [ErrBusy] while
// another attempt is in flight; a parked failed attempt is discarded to make
// room. The attempt runs asynchronously and reports through Updates.
func (o *Orchestrator) Send(ctx context.Context, take voice.Take, chatID string) (*Attempt, error) {
	o.mu.Lock()
	if o.inflight != nil {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	displaced := o.parked
	o.parked = nil

	a := &Attempt{
		ID:   uuid.NewString(),
		Take: take,
	}
	o.inflight = a
	o.mu.Unlock()

	if displaced != nil {
		o.metrics.PendingRetries.Add(ctx, -1)
		displaced.purge()
		o.emit(StatusUpdate{AttemptID: displaced.ID, TakeID: displaced.Take.ID, Status: StatusDiscarded})
		slog.Info("send: parked attempt displaced by new take", "attempt_id", displaced.ID)
	}

	go o.run(ctx, a, chatID)
	return a, nil
}

// run drives one attempt from conversion to its first terminal or parked
// state.
func (o *Orchestrator) run(ctx context.Context, a *Attempt, chatID string) {
	ctx, span := observe.StartSpan(ctx, "send.Attempt")
	defer span.End()
	log := observe.Logger(ctx).With("attempt_id", a.ID, "take_id", a.Take.ID)

	o.emit(StatusUpdate{AttemptID: a.ID, TakeID: a.Take.ID, Status: StatusConverting})
	artifact, err := o.convert.Convert(ctx, a.Take)
	if err == nil {
		a.artifact = artifact
	}
	if o.finishIfWithdrawn(ctx, a) {
		return
	}
	if err != nil {
		// Conversion failure falls back to uploading the raw artifact.
		log.Warn("send: conversion failed, sending raw artifact", "err", err)
		o.metrics.RecordSendAttempt(ctx, "fallback")
		o.emit(StatusUpdate{AttemptID: a.ID, TakeID: a.Take.ID, Status: StatusFallback, Err: err})
		a.req = transport.SendVoiceRequest{
			ChatID:   chatID,
			Path:     a.Take.Path,
			Duration: a.Take.Duration,
		}
	} else {
		a.req = transport.SendVoiceRequest{
			ChatID:   chatID,
			Path:     artifact.Path,
			Duration: artifact.Duration,
			Waveform: artifact.Waveform,
		}
	}

	o.upload(ctx, a, log)
}

// upload performs one send of the attempt's frozen payload and settles the
// attempt as sent, parked, or discarded.
func (o *Orchestrator) upload(ctx context.Context, a *Attempt, log *slog.Logger) {
	if o.gate != nil {
		if err := o.gate(); err != nil {
			log.Warn("send: not ready, attempt parked", "err", err)
			o.park(ctx, a, err)
			return
		}
	}

	o.emit(StatusUpdate{AttemptID: a.ID, TakeID: a.Take.ID, Status: StatusSending})
	a.attempts.Add(1)

	start := time.Now()
	handle, err := o.client.SendVoiceMessage(ctx, a.req)
	o.metrics.SendDuration.Record(ctx, time.Since(start).Seconds())

	if o.finishIfWithdrawn(ctx, a) {
		return
	}

	if err != nil {
		o.metrics.RecordSendAttempt(ctx, "failed")
		o.metrics.RecordTransportError(ctx, "sendVoiceMessage")

		log.Warn("send: attempt failed, awaiting retry or discard", "err", err)
		o.park(ctx, a, err)
		return
	}

	o.mu.Lock()
	o.inflight = nil
	o.mu.Unlock()

	a.purge()
	o.metrics.RecordSendAttempt(ctx, "sent")
	log.Info("send: message accepted", "message_id", handle.MessageID, "chat_id", handle.ChatID)
	o.emit(StatusUpdate{AttemptID: a.ID, TakeID: a.Take.ID, Status: StatusSent, Handle: handle})
}

// park retires a failed attempt to the parked slot, awaiting retry or
// discard. Withdraw can race the failing stage, so the withdrawn flag is
// re-checked under the lock: a withdrawn attempt is settled as discarded
// instead of parked, its files purged.
func (o *Orchestrator) park(ctx context.Context, a *Attempt, cause error) {
	o.mu.Lock()
	o.inflight = nil
	if a.withdrawn.Load() {
		o.mu.Unlock()
		a.purge()
		o.metrics.RecordSendAttempt(ctx, "withdrawn")
		o.emit(StatusUpdate{AttemptID: a.ID, TakeID: a.Take.ID, Status: StatusDiscarded})
		return
	}
	o.parked = a
	o.mu.Unlock()

	o.metrics.PendingRetries.Add(ctx, 1)
	o.emit(StatusUpdate{AttemptID: a.ID, TakeID: a.Take.ID, Status: StatusFailed, Err: cause})
}

// Retry re-uploads the parked attempt's identical payload.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	a := o.parked
	if a == nil {
		o.mu.Unlock()
		return ErrNoParkedAttempt
	}
	if o.inflight != nil {
		o.mu.Unlock()
		return ErrBusy
	}
	o.parked = nil
	o.inflight = a
	o.mu.Unlock()

	o.metrics.PendingRetries.Add(ctx, -1)
	go func() {
		ctx, span := observe.StartSpan(ctx, "send.Retry")
		defer span.End()
		log := observe.Logger(ctx).With("attempt_id", a.ID, "take_id", a.Take.ID)
		o.upload(ctx, a, log)
	}()
	return nil
}

// Discard abandons the parked attempt and purges its files.
func (o *Orchestrator) Discard(ctx context.Context) error {
	o.mu.Lock()
	a := o.parked
	o.parked = nil
	o.mu.Unlock()
	if a == nil {
		return ErrNoParkedAttempt
	}

	o.metrics.PendingRetries.Add(ctx, -1)
	a.purge()
	slog.Info("send: attempt discarded", "attempt_id", a.ID)
	o.emit(StatusUpdate{AttemptID: a.ID, TakeID: a.Take.ID, Status: StatusDiscarded})
	return nil
}

// Withdraw detaches the in-flight attempt so a new recording can start
// immediately. Its files are purged once the pending operation returns. It
// reports whether an attempt was withdrawn.
func (o *Orchestrator) Withdraw() bool {
	o.mu.Lock()
	a := o.inflight
	if a == nil {
		o.mu.Unlock()
		return false
	}
	// The flag must be set under the lock so a concurrently failing stage
	// observes it before deciding to park the attempt.
	a.withdrawn.Store(true)
	o.inflight = nil
	o.mu.Unlock()

	slog.Info("send: in-flight attempt withdrawn", "attempt_id", a.ID)
	return true
}

// finishIfWithdrawn settles a withdrawn attempt after a pending stage
// returns: files are purged and the discard is announced.
func (o *Orchestrator) finishIfWithdrawn(ctx context.Context, a *Attempt) bool {
	if !a.withdrawn.Load() {
		return false
	}
	a.purge()
	o.metrics.RecordSendAttempt(ctx, "withdrawn")
	o.emit(StatusUpdate{AttemptID: a.ID, TakeID: a.Take.ID, Status: StatusDiscarded})
	return true
}

func (o *Orchestrator) emit(u StatusUpdate) {
	select {
	case o.updates <- u:
	default:
		slog.Warn("send: dropping status update, consumer too slow",
			"attempt_id", u.AttemptID, "status", u.Status)
	}
}
