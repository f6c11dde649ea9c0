package audio

import "time"

// Frame represents a single chunk of captured audio flowing through the
// pipeline. Frames are produced by the recording device, inspected for
// silence detection, and appended to the raw take artifact.
type Frame struct {
	// PCM audio data, little-endian int16 samples.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for the Opus transport codec).
	SampleRate int

	// Channels: 1 for mono capture, 2 for stereo devices.
	Channels int

	// Timestamp marks when this frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Peak returns the largest absolute sample amplitude in the frame, normalized
// to [0, 1].
func (f Frame) Peak() float64 {
	return Peak(f.Data)
}
