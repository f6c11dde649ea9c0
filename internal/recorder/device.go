package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// DeviceConfig selects the capture source and format. Capture is always
// signed 16-bit little-endian mono PCM.
type DeviceConfig struct {
	// Name is the input device identifier, e.g. a PulseAudio source name.
	Name string

	// SampleRate is the capture rate in Hz.
	SampleRate int
}

// Session is a live audio capture. Read returns raw PCM bytes; Close stops
// the capture and unblocks any pending Read.
type Session interface {
	io.ReadCloser
}

// Device opens capture sessions. Implementations must support one session at
// a time per recorder; the mock subpackage provides a scripted fake for tests.
type Device interface {
	Start(ctx context.Context, cfg DeviceConfig) (Session, error)
}

// FFmpegDevice captures microphone audio by spawning an ffmpeg process that
// streams raw PCM to its stdout.
type FFmpegDevice struct {
	command string
	format  string
}

// NewFFmpegDevice creates a device using the given ffmpeg binary (defaults to
// "ffmpeg" on PATH) and input format (defaults to "pulse").
func NewFFmpegDevice(command, format string) *FFmpegDevice {
	if command == "" {
		command = "ffmpeg"
	}
	if format == "" {
		format = "pulse"
	}
	return &FFmpegDevice{command: command, format: format}
}

// Start implements [Device].
func (d *FFmpegDevice) Start(ctx context.Context, cfg DeviceConfig) (Session, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("recorder: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", d.format,
		"-i", cfg.Name,
		"-ac", "1",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, d.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder: ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("recorder: start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// Give ffmpeg a moment to fail on a bad device name so the error
	// surfaces from Start instead of the first Read.
	select {
	case err := <-waitErr:
		msg := bytes.TrimSpace(stderr.Bytes())
		if err != nil {
			return nil, fmt.Errorf("recorder: ffmpeg exited before capture started: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("recorder: ffmpeg exited before capture started: %s", msg)
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeExit(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeExit(err)
			}
		}

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, bytes.TrimSpace(s.stderr.Bytes()))
		}
	})
	return s.stopErr
}

// normalizeExit drops the non-zero exit status ffmpeg reports when
// interrupted mid-stream.
func normalizeExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
