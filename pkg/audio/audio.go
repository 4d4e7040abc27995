// Package audio provides the PCM16 helpers shared by the arivox pipeline:
// format constants, duration math, linear resampling for telephony rates,
// float32 conversion for native inference, and WAV container encoding for
// HTTP batch upload.
//
// All functions operate on 16-bit signed little-endian PCM. The pipeline is
// mono end to end; there is no multi-channel support.
package audio

import "time"

const (
	// BitsPerSample is fixed at 16 for the signed little-endian PCM audio
	// used throughout the pipeline.
	BitsPerSample = 16

	// BytesPerSample is the PCM16 sample width in bytes.
	BytesPerSample = BitsPerSample / 8

	// PipelineRate is the sample rate the STT pipeline operates at.
	// Telephony audio arriving at other rates is resampled on ingest.
	PipelineRate = 16000
)

// Duration returns the play time of a mono PCM16 buffer at the given sample
// rate. Returns 0 for a non-positive rate.
func Duration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// BytesPerMs returns the number of PCM16 bytes per millisecond of mono audio
// at the given sample rate.
func BytesPerMs(sampleRate int) int {
	return sampleRate * BytesPerSample / 1000
}
