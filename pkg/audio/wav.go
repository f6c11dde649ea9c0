package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotWAV is returned by [ReadWAVFile] when the file is not a PCM16 WAV.
var ErrNotWAV = errors.New("audio: not a PCM16 WAV file")

const wavHeaderSize = 44

// WAVWriter writes a PCM16 WAV file incrementally. The header is written with
// placeholder sizes on creation and patched on Close, so the file is only
// valid after a successful Close.
type WAVWriter struct {
	f          *os.File
	sampleRate int
	channels   int
	dataLen    uint32
}

// NewWAVWriter creates path (truncating any existing file) and writes the
// provisional WAV header.
func NewWAVWriter(path string, sampleRate, channels int) (*WAVWriter, error) {
	if sampleRate <= 0 || channels < 1 || channels > 2 {
		return nil, fmt.Errorf("audio: invalid wav format %dHz/%dch", sampleRate, channels)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("audio: create wav %q: %w", path, err)
	}
	w := &WAVWriter{f: f, sampleRate: sampleRate, channels: channels}
	if err := w.writeHeader(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

// Write appends raw little-endian int16 PCM data to the file.
func (w *WAVWriter) Write(pcm []byte) error {
	n, err := w.f.Write(pcm)
	w.dataLen += uint32(n)
	if err != nil {
		return fmt.Errorf("audio: write wav data: %w", err)
	}
	return nil
}

// Close patches the RIFF and data chunk sizes and closes the file.
func (w *WAVWriter) Close() error {
	if err := w.patchSizes(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("audio: close wav: %w", err)
	}
	return nil
}

// writeHeader emits the 44-byte canonical PCM WAV header with zeroed sizes.
func (w *WAVWriter) writeHeader() error {
	var hdr [wavHeaderSize]byte
	copy(hdr[0:4], "RIFF")
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(hdr[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(w.sampleRate))
	byteRate := uint32(w.sampleRate * w.channels * 2)
	binary.LittleEndian.PutUint32(hdr[28:32], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(w.channels*2)) // block align
	binary.LittleEndian.PutUint16(hdr[34:36], 16)                   // bits per sample
	copy(hdr[36:40], "data")
	if _, err := w.f.Write(hdr[:]); err != nil {
		return fmt.Errorf("audio: write wav header: %w", err)
	}
	return nil
}

// patchSizes rewrites the RIFF and data chunk lengths in place.
func (w *WAVWriter) patchSizes() error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], 36+w.dataLen)
	if _, err := w.f.WriteAt(buf[:], 4); err != nil {
		return fmt.Errorf("audio: patch riff size: %w", err)
	}
	binary.LittleEndian.PutUint32(buf[:], w.dataLen)
	if _, err := w.f.WriteAt(buf[:], 40); err != nil {
		return fmt.Errorf("audio: patch data size: %w", err)
	}
	return nil
}

// ReadWAVFile reads a PCM16 WAV file and returns its raw sample data together
// with the sample rate and channel count. Only the canonical 16-bit PCM
// layout produced by [WAVWriter] (and most recording tools) is accepted.
func ReadWAVFile(path string) (pcm []byte, sampleRate, channels int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("audio: open wav %q: %w", path, err)
	}
	defer f.Close()

	var hdr [12]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %q", ErrNotWAV, path)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("%w: %q", ErrNotWAV, path)
	}

	// Walk chunks until both fmt and data have been seen.
	var (
		haveFmt bool
		bits    uint16
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			return nil, 0, 0, fmt.Errorf("%w: truncated chunk header", ErrNotWAV)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(f, body); err != nil {
				return nil, 0, 0, fmt.Errorf("%w: truncated fmt chunk", ErrNotWAV)
			}
			if len(body) < 16 || binary.LittleEndian.Uint16(body[0:2]) != 1 {
				return nil, 0, 0, fmt.Errorf("%w: non-PCM encoding", ErrNotWAV)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits = binary.LittleEndian.Uint16(body[14:16])
			if bits != 16 {
				return nil, 0, 0, fmt.Errorf("%w: %d-bit samples", ErrNotWAV, bits)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, 0, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			pcm = make([]byte, size)
			if _, err := io.ReadFull(f, pcm); err != nil {
				return nil, 0, 0, fmt.Errorf("%w: truncated data chunk", ErrNotWAV)
			}
			return pcm, sampleRate, channels, nil
		default:
			// Skip unknown chunks (LIST, fact, …).
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, 0, 0, fmt.Errorf("%w: seek past %q", ErrNotWAV, id)
			}
		}
	}
}
