// Package voice defines the domain types shared across the recording,
// conversion, and send pipeline: the raw Take produced by the recorder and
// the codec-ready Artifact produced by the converter.
package voice

import (
	"os"
	"time"
)

// Take is one user-initiated recording attempt. It is created when recording
// starts and finalized when capture stops; the raw artifact lives at Path
// until the take is discarded or its send attempt terminates.
type Take struct {
	// ID uniquely identifies this take.
	ID string

	// Path is the location of the raw audio artifact (a PCM16 WAV file).
	Path string

	// Duration is the recorded length in whole seconds.
	Duration int

	// AutoStopped reports whether the recorder ended the take via silence
	// detection rather than a user release.
	AutoStopped bool

	// CreatedAt is when recording started.
	CreatedAt time.Time
}

// Discard removes the take's raw artifact from disk. Removing an
// already-removed artifact is not an error.
func (t *Take) Discard() error {
	if t.Path == "" {
		return nil
	}
	if err := os.Remove(t.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Artifact is the transport-codec payload derived from a Take: an Opus frame
// file plus the fixed-length visual waveform. It is retained until the send
// attempt that consumes it terminates and is never persisted across restarts.
type Artifact struct {
	// Path is the location of the encoded Opus frame file.
	Path string

	// Duration is the clip length in whole seconds, carried over from the Take.
	Duration int

	// Waveform is the fixed-length loudness-bucket sequence
	// (length audio.WaveformBuckets, values 0..audio.WaveformMax).
	Waveform []byte

	// TakeID identifies the source Take.
	TakeID string
}

// Discard removes the artifact's encoded file from disk. Removing an
// already-removed file is not an error.
func (a *Artifact) Discard() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
