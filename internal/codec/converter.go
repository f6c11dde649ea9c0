// Package codec converts raw voice takes into the transport payload format:
// a mono 48 kHz Opus frame file plus the fixed-length visual waveform.
//
// The frame file stores each Opus packet with a little-endian uint16 length
// prefix, in capture order. Conversion never modifies the source take; the
// raw artifact stays on disk until its send attempt terminates.
package codec

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"layeh.com/gopus"

	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/pkg/audio"
	"github.com/voxwire/voxwire/pkg/voice"
)

// Transport codec parameters: 48 kHz mono Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 1
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
	// maxOpusPacket bounds the encoder output buffer per frame.
	maxOpusPacket = 4000
)

// ConversionError reports a failed take conversion. The send pipeline treats
// it as the trigger for the raw-artifact fallback.
type ConversionError struct {
	TakeID string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("codec: converting take %s: %v", e.TakeID, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Converter encodes takes into Opus artifacts. It is safe for concurrent use;
// each conversion uses its own encoder instance.
type Converter struct {
	tempDir string
	metrics *observe.Metrics
}

// New creates a converter writing encoded artifacts into tempDir.
func New(tempDir string) (*Converter, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("codec: create temp dir: %w", err)
	}
	return &Converter{
		tempDir: tempDir,
		metrics: observe.DefaultMetrics(),
	}, nil
}

// Convert encodes the take's raw WAV into an Opus frame file and computes its
// waveform. Failures are returned as [*ConversionError]; the partially
// written output is removed.
func (c *Converter) Convert(ctx context.Context, take voice.Take) (*voice.Artifact, error) {
	ctx, span := observe.StartSpan(ctx, "codec.Convert")
	defer span.End()
	start := time.Now()

	pcm, rate, channels, err := audio.ReadWAVFile(take.Path)
	if err != nil {
		return nil, &ConversionError{TakeID: take.ID, Err: err}
	}
	if len(pcm) == 0 {
		return nil, &ConversionError{TakeID: take.ID, Err: fmt.Errorf("take has no audio data")}
	}

	mono, err := audio.NormalizeMono16(pcm, channels, rate, opusSampleRate)
	if err != nil {
		return nil, &ConversionError{TakeID: take.ID, Err: err}
	}

	path := filepath.Join(c.tempDir, "clip-"+take.ID+".opus")
	if err := c.encodeToFile(mono, path); err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			observe.Logger(ctx).Warn("codec: removing partial artifact failed",
				"take_id", take.ID, "err", rmErr)
		}
		return nil, &ConversionError{TakeID: take.ID, Err: err}
	}

	elapsed := time.Since(start)
	c.metrics.ConversionDuration.Record(ctx, elapsed.Seconds())
	observe.Logger(ctx).Info("codec: take converted",
		"take_id", take.ID, "elapsed", elapsed)

	return &voice.Artifact{
		Path:     path,
		Duration: take.Duration,
		Waveform: audio.Waveform(mono),
		TakeID:   take.ID,
	}, nil
}

// encodeToFile splits mono PCM into 20 ms frames (the final frame is
// zero-padded), Opus-encodes each, and writes them length-prefixed to path.
func (c *Converter) encodeToFile(mono []byte, path string) error {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	w := bufio.NewWriter(f)

	samples := audio.BytesToInt16s(mono)
	frame := make([]int16, opusFrameSize)
	for off := 0; off < len(samples); off += opusFrameSize {
		n := copy(frame, samples[off:])
		for i := n; i < opusFrameSize; i++ {
			frame[i] = 0
		}

		packet, err := enc.Encode(frame, opusFrameSize, maxOpusPacket)
		if err != nil {
			f.Close()
			return fmt.Errorf("opus encode: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(len(packet))); err != nil {
			f.Close()
			return fmt.Errorf("write frame length: %w", err)
		}
		if _, err := w.Write(packet); err != nil {
			f.Close()
			return fmt.Errorf("write frame: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	return nil
}
