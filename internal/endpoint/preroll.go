package endpoint

// prerollRing is a bounded byte ring holding the most recent audio written
// to it, up to its capacity. When full, the oldest bytes are overwritten.
// It captures the audio immediately preceding speech onset so a finalized
// utterance starts with the natural attack of speech instead of the
// energy-crossing point.
//
// Not safe for concurrent use; each call's segmenter owns its own ring.
type prerollRing struct {
	buf  []byte
	head int // index of next write position
	n    int // number of valid bytes
}

func newPrerollRing(capacity int) *prerollRing {
	return &prerollRing{buf: make([]byte, capacity)}
}

// write appends p, dropping the oldest bytes when the ring is full.
func (r *prerollRing) write(p []byte) {
	if len(r.buf) == 0 {
		return
	}
	// Only the last cap bytes of an oversized write can survive anyway.
	if len(p) > len(r.buf) {
		p = p[len(p)-len(r.buf):]
	}
	for _, b := range p {
		r.buf[r.head] = b
		r.head = (r.head + 1) % len(r.buf)
		if r.n < len(r.buf) {
			r.n++
		}
	}
}

// snapshot returns a copy of the buffered bytes in write order, oldest first.
func (r *prerollRing) snapshot() []byte {
	if r.n == 0 {
		return nil
	}
	out := make([]byte, r.n)
	start := (r.head - r.n + len(r.buf)) % len(r.buf)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// reset discards all buffered bytes.
func (r *prerollRing) reset() {
	r.head = 0
	r.n = 0
}

// len returns the number of buffered bytes.
func (r *prerollRing) len() int { return r.n }
