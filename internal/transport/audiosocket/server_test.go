package audiosocket_test

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arivox/arivox/internal/transport/audiosocket"
)

// recordingHandler records call lifecycle callbacks and inbound frames.
type recordingHandler struct {
	mu      sync.Mutex
	started []string
	ended   []string
	frames  map[string][][]byte
	out     audiosocket.AudioWriter
	endedCh chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		frames:  make(map[string][][]byte),
		endedCh: make(chan string, 4),
	}
}

func (h *recordingHandler) CallStarted(_ context.Context, callID string, out audiosocket.AudioWriter) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, callID)
	h.out = out
	return nil
}

func (h *recordingHandler) CallAudio(_ context.Context, callID string, frame []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames[callID] = append(h.frames[callID], append([]byte(nil), frame...))
	return nil
}

func (h *recordingHandler) CallEnded(_ context.Context, callID string) {
	h.mu.Lock()
	h.ended = append(h.ended, callID)
	h.mu.Unlock()
	h.endedCh <- callID
}

// startServer runs a server on an ephemeral port and returns its address.
func startServer(t *testing.T, h audiosocket.Handler) string {
	t.Helper()
	srv := audiosocket.NewServer("127.0.0.1:0", h)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server never bound its listener")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv.Addr()
}

func dialCall(t *testing.T, addr string, id uuid.UUID) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	msg := audiosocket.Message{Kind: audiosocket.KindUUID, Payload: id[:]}
	if err := audiosocket.WriteMessage(conn, msg); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	return conn
}

func waitEnded(t *testing.T, h *recordingHandler, want string) {
	t.Helper()
	select {
	case got := <-h.endedCh:
		if got != want {
			t.Fatalf("CallEnded for %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for CallEnded")
	}
}

func TestServerHandshakeAndTeardown(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()
	addr := startServer(t, h)

	id := uuid.New()
	conn := dialCall(t, addr, id)
	audiosocket.WriteTerminate(conn)
	waitEnded(t, h, id.String())

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.started) != 1 || h.started[0] != id.String() {
		t.Fatalf("started = %v, want [%s]", h.started, id)
	}
}

func TestServerReframesTelephonyAudio(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()
	addr := startServer(t, h)

	id := uuid.New()
	conn := dialCall(t, addr, id)

	// 60ms of 8kHz audio sent as one oversized message plus one partial:
	// three exact 20ms frames, upsampled to 16kHz (640 bytes each). The
	// trailing 10ms partial must be dropped at hangup.
	audioMsg := bytes.Repeat([]byte{0x10, 0x00}, 3*160)
	if err := audiosocket.WriteAudio(conn, audioMsg); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if err := audiosocket.WriteAudio(conn, make([]byte, 160)); err != nil {
		t.Fatalf("write partial audio: %v", err)
	}
	audiosocket.WriteTerminate(conn)
	waitEnded(t, h, id.String())

	h.mu.Lock()
	defer h.mu.Unlock()
	frames := h.frames[id.String()]
	if len(frames) != 3 {
		t.Fatalf("handler received %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		if len(f) != 640 {
			t.Errorf("frame %d is %d bytes, want 640 after upsampling", i, len(f))
		}
	}
}

func TestServerRejectsBadHandshake(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()
	addr := startServer(t, h)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Audio before the UUID handshake is a protocol violation.
	if err := audiosocket.WriteAudio(conn, make([]byte, 320)); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The server closes the connection without ever starting a call.
	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected connection close or terminate, got data")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.started) != 0 {
		t.Fatalf("started = %v, want no calls", h.started)
	}
}

func TestServerPlaybackReachesPeer(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()
	addr := startServer(t, h)

	id := uuid.New()
	conn := dialCall(t, addr, id)

	// Wait for CallStarted to capture the writer.
	deadline := time.Now().Add(5 * time.Second)
	for {
		h.mu.Lock()
		out := h.out
		h.mu.Unlock()
		if out != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("CallStarted never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	pcm := bytes.Repeat([]byte{0x22, 0x00}, 320) // 40ms at 8kHz
	go func() {
		h.mu.Lock()
		out := h.out
		h.mu.Unlock()
		out.Play(context.Background(), pcm)
	}()

	var got []byte
	for len(got) < len(pcm) {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		msg, err := audiosocket.ReadMessage(conn)
		if err != nil {
			t.Fatalf("read playback: %v", err)
		}
		if msg.Kind != audiosocket.KindAudio {
			t.Fatalf("playback message kind = 0x%02x, want audio", msg.Kind)
		}
		got = append(got, msg.Payload...)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatal("playback audio does not match what was written")
	}
	audiosocket.WriteTerminate(conn)
	waitEnded(t, h, id.String())
}
