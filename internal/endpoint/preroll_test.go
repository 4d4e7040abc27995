package endpoint

import (
	"bytes"
	"testing"
)

func TestPrerollRingDropsOldest(t *testing.T) {
	t.Parallel()
	r := newPrerollRing(4)

	r.write([]byte{1, 2})
	r.write([]byte{3, 4})
	if got := r.snapshot(); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("snapshot = %v, want [1 2 3 4]", got)
	}

	r.write([]byte{5, 6})
	if got := r.snapshot(); !bytes.Equal(got, []byte{3, 4, 5, 6}) {
		t.Fatalf("snapshot after overflow = %v, want [3 4 5 6]", got)
	}
}

func TestPrerollRingOversizedWrite(t *testing.T) {
	t.Parallel()
	r := newPrerollRing(3)
	r.write([]byte{1, 2, 3, 4, 5})
	if got := r.snapshot(); !bytes.Equal(got, []byte{3, 4, 5}) {
		t.Fatalf("snapshot = %v, want [3 4 5]", got)
	}
}

func TestPrerollRingReset(t *testing.T) {
	t.Parallel()
	r := newPrerollRing(4)
	r.write([]byte{1, 2, 3})
	r.reset()
	if r.len() != 0 {
		t.Errorf("len after reset = %d, want 0", r.len())
	}
	if got := r.snapshot(); got != nil {
		t.Errorf("snapshot after reset = %v, want nil", got)
	}
}

func TestPrerollRingZeroCapacity(t *testing.T) {
	t.Parallel()
	r := newPrerollRing(0)
	r.write([]byte{1, 2})
	if got := r.snapshot(); got != nil {
		t.Errorf("snapshot = %v, want nil for zero-capacity ring", got)
	}
}
