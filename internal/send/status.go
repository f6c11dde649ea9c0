package send

import "github.com/voxwire/voxwire/internal/transport"

// Status is the lifecycle position of a send attempt.
type Status string

const (
	// StatusConverting means the raw take is being encoded to the transport
	// codec.
	StatusConverting Status = "converting"

	// StatusFallback means conversion failed and the attempt proceeds with
	// the raw artifact instead.
	StatusFallback Status = "fallback"

	// StatusSending means the payload is being uploaded to the backend.
	StatusSending Status = "sending"

	// StatusSent is terminal: the backend accepted the message and all local
	// artifacts were purged.
	StatusSent Status = "sent"

	// StatusFailed means the upload was rejected or broke. The attempt is
	// parked with its payload intact, awaiting [Orchestrator.Retry] or
	// [Orchestrator.Discard].
	StatusFailed Status = "failed"

	// StatusDiscarded is terminal: the attempt was abandoned and all local
	// artifacts were purged.
	StatusDiscarded Status = "discarded"
)

// Terminal reports whether s ends the attempt lifecycle.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusDiscarded
}

// StatusUpdate reports one attempt transition to the UI layer.
type StatusUpdate struct {
	// AttemptID identifies the send attempt.
	AttemptID string

	// TakeID identifies the recording the attempt carries.
	TakeID string

	Status Status

	// Err is set when Status is [StatusFailed] (the send rejection) or
	// [StatusFallback] (the conversion failure).
	Err error

	// Handle is set when Status is [StatusSent].
	Handle transport.MessageHandle
}
