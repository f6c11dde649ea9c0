package recorder_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/voxwire/voxwire/internal/config"
	"github.com/voxwire/voxwire/internal/recorder"
	"github.com/voxwire/voxwire/internal/recorder/mock"
	"github.com/voxwire/voxwire/pkg/audio"
)

// Test configs use a low sample rate to keep frames small: at 8 kHz one 20 ms
// frame is 160 samples.
const testRate = 8000

func testConfig() config.RecordingConfig {
	return config.RecordingConfig{
		Device:           "default",
		SampleRate:       testRate,
		SilenceDetection: true,
		SilenceThreshold: 0.03,
		SilenceDuration:  0.1,
		MaxDuration:      60,
	}
}

// frame builds one 20 ms PCM16 frame with every sample at the given amplitude.
func frame(amplitude int16) []byte {
	const samples = testRate / 50
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		buf[2*i] = byte(uint16(amplitude))
		buf[2*i+1] = byte(uint16(amplitude) >> 8)
	}
	return buf
}

func repeat(f []byte, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func waitEvent(t *testing.T, rec *recorder.Recording) recorder.Event {
	t.Helper()
	select {
	case e := <-rec.Done():
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for terminal event")
	}
	return recorder.Event{}
}

func newRecorder(t *testing.T, device recorder.Device, cfg config.RecordingConfig) *recorder.Recorder {
	t.Helper()
	r, err := recorder.New(device, cfg, t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRecorder_SilenceAutoStop(t *testing.T) {
	t.Parallel()

	loud := frame(10000)
	quiet := frame(0)
	device := &mock.Device{
		Script:     append(repeat(loud, 10), quiet),
		RepeatLast: true,
	}
	r := newRecorder(t, device, testConfig())

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	e := waitEvent(t, rec)
	if e.Kind != recorder.Finished {
		t.Fatalf("event kind = %v, want Finished (err: %v)", e.Kind, e.Err)
	}
	if !e.Take.AutoStopped {
		t.Error("take should be marked auto-stopped")
	}

	pcm, rate, channels, err := audio.ReadWAVFile(e.Take.Path)
	if err != nil {
		t.Fatalf("reading finished take: %v", err)
	}
	if rate != testRate || channels != 1 {
		t.Errorf("take format = %d Hz %d ch, want %d Hz mono", rate, channels, testRate)
	}
	if len(pcm) == 0 {
		t.Error("finished take has no audio data")
	}
}

func TestRecorder_SilenceStreakResetsOnVoice(t *testing.T) {
	t.Parallel()

	loud := frame(10000)
	quiet := frame(0)
	// Quiet runs shorter than the window, each broken by voice, then a final
	// run long enough to trip the detector.
	script := [][]byte{loud, quiet, quiet, quiet, loud, quiet, quiet, quiet, loud, quiet}
	device := &mock.Device{Script: script, RepeatLast: true}

	cfg := testConfig()
	cfg.SilenceDuration = 0.08 // 4 frames
	r := newRecorder(t, device, cfg)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	e := waitEvent(t, rec)
	if e.Kind != recorder.Finished || !e.Take.AutoStopped {
		t.Fatalf("event = %+v, want auto-stopped Finished", e)
	}

	// The three-frame quiet runs must not have stopped the take: all voice
	// frames precede the final quiet run, so the file holds at least the
	// first nine script frames.
	pcm, _, _, err := audio.ReadWAVFile(e.Take.Path)
	if err != nil {
		t.Fatal(err)
	}
	if min := 9 * len(loud); len(pcm) < min {
		t.Errorf("take holds %d bytes, want at least %d", len(pcm), min)
	}
}

func TestRecorder_MaxDurationCeiling(t *testing.T) {
	t.Parallel()

	device := &mock.Device{Script: repeat(frame(10000), 1), RepeatLast: true}
	cfg := testConfig()
	cfg.SilenceDetection = false
	cfg.MaxDuration = 1
	r := newRecorder(t, device, cfg)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	e := waitEvent(t, rec)
	if e.Kind != recorder.Finished {
		t.Fatalf("event kind = %v, want Finished (err: %v)", e.Kind, e.Err)
	}
	if !e.Take.AutoStopped {
		t.Error("ceiling stop should be marked auto-stopped")
	}
	if e.Take.Duration != 1 {
		t.Errorf("duration = %d, want 1", e.Take.Duration)
	}
}

func TestRecorder_ManualStop(t *testing.T) {
	t.Parallel()

	device := &mock.Device{Script: repeat(frame(5000), 3)}
	cfg := testConfig()
	cfg.SilenceDetection = false
	r := newRecorder(t, device, cfg)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	rec.Stop()

	e := waitEvent(t, rec)
	if e.Kind != recorder.Finished {
		t.Fatalf("event kind = %v, want Finished (err: %v)", e.Kind, e.Err)
	}
	if e.Take.AutoStopped {
		t.Error("manual stop must not be marked auto-stopped")
	}
	if e.Take.ID != rec.ID() {
		t.Errorf("take ID = %q, want %q", e.Take.ID, rec.ID())
	}
	if _, err := os.Stat(e.Take.Path); err != nil {
		t.Errorf("finished take missing on disk: %v", err)
	}
}

func TestRecorder_CancelRemovesFile(t *testing.T) {
	t.Parallel()

	device := &mock.Device{Script: repeat(frame(5000), 3)}
	cfg := testConfig()
	cfg.SilenceDetection = false
	dir := t.TempDir()
	r, err := recorder.New(device, cfg, dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	rec.Cancel()

	e := waitEvent(t, rec)
	if e.Kind != recorder.Cancelled {
		t.Fatalf("event kind = %v, want Cancelled", e.Kind)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir still holds %d entries after cancel", len(entries))
	}
	if r.Recording() {
		t.Error("recorder still marked active after cancel")
	}
}

func TestRecorder_RejectsConcurrentTakes(t *testing.T) {
	t.Parallel()

	device := &mock.Device{Script: repeat(frame(5000), 1), RepeatLast: true}
	cfg := testConfig()
	cfg.SilenceDetection = false
	cfg.MaxDuration = 60
	r := newRecorder(t, device, cfg)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rec.Stop()

	if _, err := r.Start(context.Background()); !errors.Is(err, recorder.ErrBusy) {
		t.Errorf("second Start = %v, want ErrBusy", err)
	}
}

func TestRecorder_DeviceFailureAtStart(t *testing.T) {
	t.Parallel()

	device := &mock.Device{StartErr: errors.New("no such device")}
	r := newRecorder(t, device, testConfig())

	if _, err := r.Start(context.Background()); !errors.Is(err, recorder.ErrDeviceUnavailable) {
		t.Fatalf("Start = %v, want ErrDeviceUnavailable", err)
	}
	if r.Recording() {
		t.Error("recorder marked active after failed start")
	}
}

func TestRecorder_StreamBreakFailsTake(t *testing.T) {
	t.Parallel()

	device := &mock.Device{Script: repeat(frame(5000), 2)}
	cfg := testConfig()
	cfg.SilenceDetection = false
	r := newRecorder(t, device, cfg)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Close the stream underneath the recorder without Stop or Cancel,
	// simulating the capture process dying.
	time.Sleep(50 * time.Millisecond)
	_ = device.Sessions()[0].Close()

	e := waitEvent(t, rec)
	if e.Kind != recorder.Failed {
		t.Fatalf("event kind = %v, want Failed", e.Kind)
	}
	if e.Err == nil {
		t.Error("failed event carries no error")
	}
}

func TestRecorder_TerminalEventExactlyOnce(t *testing.T) {
	t.Parallel()

	device := &mock.Device{Script: repeat(frame(5000), 2)}
	cfg := testConfig()
	cfg.SilenceDetection = false
	r := newRecorder(t, device, cfg)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.Stop()
	rec.Cancel()
	rec.Stop()

	e := waitEvent(t, rec)
	if e.Kind != recorder.Finished {
		t.Fatalf("event kind = %v, want Finished from first Stop", e.Kind)
	}

	// The channel must be closed after the single event.
	select {
	case _, ok := <-rec.Done():
		if ok {
			t.Error("received a second terminal event")
		}
	case <-time.After(time.Second):
		t.Error("done channel not closed after terminal event")
	}
}
