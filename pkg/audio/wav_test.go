package audio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/voxwire/voxwire/pkg/audio"
)

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")

	w, err := audio.NewWAVWriter(path, 16000, 1)
	if err != nil {
		t.Fatalf("NewWAVWriter: %v", err)
	}
	in := samplesToBytes([]int16{0, 100, -100, 32767, -32768})
	if err := w.Write(in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	pcm, rate, channels, err := audio.ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("format = %dHz/%dch, want 16000Hz/1ch", rate, channels)
	}
	if len(pcm) != len(in) {
		t.Fatalf("data length = %d, want %d", len(pcm), len(in))
	}
	for i := range in {
		if pcm[i] != in[i] {
			t.Fatalf("byte %d = %d, want %d", i, pcm[i], in[i])
		}
	}
}

func TestWAVWriter_IncrementalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.wav")
	w, err := audio.NewWAVWriter(path, 48000, 2)
	if err != nil {
		t.Fatalf("NewWAVWriter: %v", err)
	}
	for range 10 {
		if err := w.Write(make([]byte, 960*4)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	pcm, rate, channels, err := audio.ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile: %v", err)
	}
	if rate != 48000 || channels != 2 {
		t.Errorf("format = %dHz/%dch, want 48000Hz/2ch", rate, channels)
	}
	if len(pcm) != 10*960*4 {
		t.Errorf("data length = %d, want %d", len(pcm), 10*960*4)
	}
}

func TestNewWAVWriter_RejectsBadFormat(t *testing.T) {
	if _, err := audio.NewWAVWriter(filepath.Join(t.TempDir(), "x.wav"), 0, 1); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := audio.NewWAVWriter(filepath.Join(t.TempDir(), "y.wav"), 48000, 3); err == nil {
		t.Error("expected error for 3 channels")
	}
}

func TestReadWAVFile_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.bin")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := audio.ReadWAVFile(path); err == nil {
		t.Error("expected error for non-WAV input")
	}
}

func TestReadWAVFile_Missing(t *testing.T) {
	if _, _, _, err := audio.ReadWAVFile(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Error("expected error for missing file")
	}
}
