package endpoint

import "fmt"

// FrameBuffer accumulates the PCM16 audio of the utterance currently being
// segmented. It only ever holds whole frame-units: Append rejects partial
// frames at the boundary instead of attempting repair, so the buffer length
// is always a multiple of the frame size.
//
// Not safe for concurrent use; each call's segmenter owns its own buffer.
type FrameBuffer struct {
	frameBytes int
	data       []byte
}

// NewFrameBuffer creates a buffer for frames of exactly frameBytes bytes.
func NewFrameBuffer(frameBytes int) *FrameBuffer {
	return &FrameBuffer{frameBytes: frameBytes}
}

// Append adds one or more complete frames. It returns an error when p is
// empty or not a whole number of frame-units.
func (b *FrameBuffer) Append(p []byte) error {
	if len(p) == 0 || len(p)%b.frameBytes != 0 {
		return fmt.Errorf("endpoint: append of %d bytes is not a whole number of %d-byte frames", len(p), b.frameBytes)
	}
	b.data = append(b.data, p...)
	return nil
}

// Len returns the number of buffered bytes.
func (b *FrameBuffer) Len() int { return len(b.data) }

// Take returns the buffered audio and resets the buffer. Ownership of the
// returned slice transfers to the caller; the buffer never touches it again.
func (b *FrameBuffer) Take() []byte {
	data := b.data
	b.data = nil
	return data
}

// Reset discards all buffered audio.
func (b *FrameBuffer) Reset() { b.data = nil }
