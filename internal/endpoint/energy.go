package endpoint

import "encoding/binary"

// DefaultEnergyThreshold is the amplitude level (in raw PCM16 units,
// 0–32 767) above which a frame is classified as speech-like. It is
// deliberately coarse: a volume gate, not a spectral voice-activity
// detector, so loud non-speech noise will pass it.
const DefaultEnergyThreshold = 1200

// Gate classifies audio frames as speech-like or silence-like by comparing
// the frame's mean absolute amplitude against a threshold.
//
// Gate is stateless: Classify is a pure function of the frame bytes and the
// threshold, so a single Gate value may be shared across calls and
// goroutines.
type Gate struct {
	// Threshold is the mean-absolute-amplitude level at or above which a
	// frame counts as speech. Zero means [DefaultEnergyThreshold].
	Threshold int
}

// Classify reports whether frame carries speech-like energy. The frame must
// be 16-bit signed little-endian PCM; a trailing odd byte is ignored.
func (g Gate) Classify(frame []byte) bool {
	threshold := g.Threshold
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return meanAbsAmplitude(frame) >= threshold
}

// meanAbsAmplitude returns the mean absolute sample amplitude of a 16-bit
// signed little-endian PCM buffer. Returns 0 for buffers shorter than one
// sample.
func meanAbsAmplitude(pcm []byte) int {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < n; i++ {
		sample := int64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		if sample < 0 {
			sample = -sample
		}
		sum += sample
	}
	return int(sum / int64(n))
}
