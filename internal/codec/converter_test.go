package codec_test

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/voxwire/voxwire/internal/codec"
	"github.com/voxwire/voxwire/pkg/audio"
	"github.com/voxwire/voxwire/pkg/voice"
)

// writeTake writes a mono WAV of the given length filled with a 440 Hz tone
// and returns a take pointing at it.
func writeTake(t *testing.T, dir string, rate int, seconds float64) voice.Take {
	t.Helper()

	path := filepath.Join(dir, "take-test.wav")
	w, err := audio.NewWAVWriter(path, rate, 1)
	if err != nil {
		t.Fatalf("NewWAVWriter: %v", err)
	}

	total := int(float64(rate) * seconds)
	pcm := make([]int16, total)
	for i := range pcm {
		pcm[i] = int16(12000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	if err := w.Write(audio.Int16sToBytes(pcm)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	return voice.Take{
		ID:       "test",
		Path:     path,
		Duration: int(seconds + 0.5),
	}
}

func newConverter(t *testing.T) *codec.Converter {
	t.Helper()
	c, err := codec.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestConvert_ProducesArtifact(t *testing.T) {
	t.Parallel()

	c := newConverter(t)
	take := writeTake(t, t.TempDir(), 16000, 1.0)

	art, err := c.Convert(context.Background(), take)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if art.TakeID != take.ID {
		t.Errorf("TakeID = %q, want %q", art.TakeID, take.ID)
	}
	if art.Duration != take.Duration {
		t.Errorf("Duration = %d, want %d", art.Duration, take.Duration)
	}
	if len(art.Waveform) != audio.WaveformBuckets {
		t.Errorf("waveform length = %d, want %d", len(art.Waveform), audio.WaveformBuckets)
	}
	for i, v := range art.Waveform {
		if v > audio.WaveformMax {
			t.Errorf("waveform[%d] = %d, exceeds %d", i, v, audio.WaveformMax)
		}
	}

	// A full-scale tone must register as loud somewhere.
	var peak byte
	for _, v := range art.Waveform {
		if v > peak {
			peak = v
		}
	}
	if peak == 0 {
		t.Error("waveform of a tone is all zeros")
	}
}

func TestConvert_FrameFileStructure(t *testing.T) {
	t.Parallel()

	c := newConverter(t)
	take := writeTake(t, t.TempDir(), 48000, 0.5)

	art, err := c.Convert(context.Background(), take)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	data, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}

	// Walk the length-prefixed frames; the file must parse exactly.
	frames := 0
	for off := 0; off < len(data); {
		if off+2 > len(data) {
			t.Fatalf("truncated length prefix at offset %d", off)
		}
		n := int(binary.LittleEndian.Uint16(data[off : off+2]))
		if n == 0 {
			t.Fatalf("zero-length frame at offset %d", off)
		}
		off += 2 + n
		if off > len(data) {
			t.Fatalf("frame overruns file at offset %d", off)
		}
		frames++
	}

	// 0.5 s at 20 ms per frame is 25 frames.
	if frames != 25 {
		t.Errorf("frame count = %d, want 25", frames)
	}
}

func TestConvert_DoesNotTouchSource(t *testing.T) {
	t.Parallel()

	c := newConverter(t)
	dir := t.TempDir()
	take := writeTake(t, dir, 16000, 0.2)

	before, err := os.ReadFile(take.Path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Convert(context.Background(), take); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	after, err := os.ReadFile(take.Path)
	if err != nil {
		t.Fatalf("source take gone after conversion: %v", err)
	}
	if string(before) != string(after) {
		t.Error("conversion modified the source take")
	}
}

func TestConvert_MissingTake(t *testing.T) {
	t.Parallel()

	c := newConverter(t)
	take := voice.Take{ID: "gone", Path: filepath.Join(t.TempDir(), "missing.wav")}

	_, err := c.Convert(context.Background(), take)
	var convErr *codec.ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("error = %v, want ConversionError", err)
	}
	if convErr.TakeID != "gone" {
		t.Errorf("TakeID = %q, want %q", convErr.TakeID, "gone")
	}
}

func TestConvert_EmptyTake(t *testing.T) {
	t.Parallel()

	c := newConverter(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "empty.wav")
	w, err := audio.NewWAVWriter(path, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = c.Convert(context.Background(), voice.Take{ID: "empty", Path: path})
	var convErr *codec.ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("error = %v, want ConversionError", err)
	}
}

func TestConvert_GarbageInput(t *testing.T) {
	t.Parallel()

	c := newConverter(t)
	path := filepath.Join(t.TempDir(), "noise.wav")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := c.Convert(context.Background(), voice.Take{ID: "noise", Path: path})
	var convErr *codec.ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("error = %v, want ConversionError", err)
	}
}
