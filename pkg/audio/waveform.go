package audio

// Waveform bucketing for the transport's visual waveform format.
//
// The quantization rule is deterministic: the decoded sample span is divided
// into exactly [WaveformBuckets] equal time slices, the peak absolute
// amplitude of each slice is taken, and every peak is scaled linearly against
// the largest peak observed in the clip so the loudest slice always maps to
// [WaveformMax]. A fully silent clip yields all zeros.

const (
	// WaveformBuckets is the fixed number of loudness buckets the transport
	// expects, independent of clip duration.
	WaveformBuckets = 63

	// WaveformMax is the upper bound of a bucket value (5-bit range).
	WaveformMax = 31
)

// Waveform computes the fixed-length loudness-bucket waveform for mono
// little-endian int16 PCM data. The result always has length
// [WaveformBuckets] with every value in [0, WaveformMax], regardless of
// input length; empty input yields all zeros.
func Waveform(pcm []byte) []byte {
	buckets := make([]byte, WaveformBuckets)
	samples := len(pcm) / 2
	if samples == 0 {
		return buckets
	}

	peaks := make([]int32, WaveformBuckets)
	var maxPeak int32
	for b := range WaveformBuckets {
		start := samples * b / WaveformBuckets
		end := samples * (b + 1) / WaveformBuckets
		var peak int32
		for i := start; i < end; i++ {
			s := int32(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
		peaks[b] = peak
		if peak > maxPeak {
			maxPeak = peak
		}
	}

	if maxPeak == 0 {
		return buckets
	}
	for b, peak := range peaks {
		buckets[b] = byte(peak * WaveformMax / maxPeak)
	}
	return buckets
}
