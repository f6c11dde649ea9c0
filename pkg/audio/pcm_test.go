package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/voxwire/voxwire/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestStereoToMono(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	mono := audio.StereoToMono(stereo)
	got := bytesToSamples(mono)
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	// Two max-positive samples should clamp to 32767 (not overflow).
	stereo := samplesToBytes([]int16{32767, 32767})
	mono := audio.StereoToMono(stereo)
	got := bytesToSamples(mono)
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0] != 32767 {
		t.Errorf("got %d, want 32767", got[0])
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 48000, 48000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	pcm := samplesToBytes([]int16{1000, 2000})
	out := audio.ResampleMono16(pcm, 16000, 48000)
	got := bytesToSamples(out)
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	last := got[len(got)-1]
	if last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	// 6 samples at 48kHz → 2 samples at 16kHz (1/3x)
	pcm := samplesToBytes([]int16{100, 200, 300, 400, 500, 600})
	out := audio.ResampleMono16(pcm, 48000, 16000)
	got := bytesToSamples(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
}

func TestNormalizeMono16_StereoDownmixAndResample(t *testing.T) {
	// 4 stereo frames at 16kHz → mono at 48kHz: 4 mono samples * 3.
	pcm := samplesToBytes([]int16{100, 100, 200, 200, 300, 300, 400, 400})
	out, err := audio.NormalizeMono16(pcm, 2, 16000, 48000)
	if err != nil {
		t.Fatalf("NormalizeMono16: %v", err)
	}
	if len(out)/2 != 12 {
		t.Fatalf("expected 12 samples, got %d", len(out)/2)
	}
}

func TestNormalizeMono16_RejectsSurround(t *testing.T) {
	if _, err := audio.NormalizeMono16(nil, 6, 48000, 48000); err == nil {
		t.Fatal("expected error for 6-channel input")
	}
}

func TestInt16RoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345}
	out := audio.BytesToInt16s(audio.Int16sToBytes(in))
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, out[i], in[i])
		}
	}
}

func TestPeak(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", []int16{0, 0, 0}, 0},
		{"full scale negative", []int16{100, -32768, 5}, 1.0},
		{"half scale", []int16{16384}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := audio.Peak(samplesToBytes(tt.samples))
			if got < tt.want-0.001 || got > tt.want+0.001 {
				t.Errorf("Peak = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestFramePeak(t *testing.T) {
	f := audio.Frame{
		Data:       samplesToBytes([]int16{0, 16384, -8192}),
		SampleRate: 48000,
		Channels:   1,
	}
	if p := f.Peak(); p < 0.499 || p > 0.501 {
		t.Errorf("Peak = %f, want 0.5", p)
	}
	if p := (audio.Frame{}).Peak(); p != 0 {
		t.Errorf("empty frame Peak = %f, want 0", p)
	}
}

func TestFrameDuration(t *testing.T) {
	f := audio.Frame{Data: make([]byte, 960*2), SampleRate: 48000, Channels: 1}
	if d := f.Duration(); d.Milliseconds() != 20 {
		t.Errorf("Duration = %v, want 20ms", d)
	}
	bad := audio.Frame{Data: make([]byte, 4)}
	if d := bad.Duration(); d != 0 {
		t.Errorf("Duration with zero rate = %v, want 0", d)
	}
}
