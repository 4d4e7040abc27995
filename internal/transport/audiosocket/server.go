package audiosocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arivox/arivox/pkg/audio"
)

// Default transport parameters. Asterisk's AudioSocket channel driver
// streams signed linear 16-bit 8kHz mono in 20ms chunks.
const (
	DefaultTelephonyRate = 8000
	DefaultFrameMs       = 20
)

// AudioWriter plays audio back into the call. Implementations pace writes
// so Asterisk receives roughly realtime audio.
type AudioWriter interface {
	// Play writes pcm (at the telephony rate) into the call, pacing it in
	// frame-sized chunks. Blocks until the audio has been written or ctx
	// is cancelled.
	Play(ctx context.Context, pcm []byte) error

	// Hangup asks Asterisk to terminate the call.
	Hangup() error
}

// Handler receives the lifecycle and audio of each call carried over
// AudioSocket. Frames delivered to CallAudio are exactly one frame of
// pipeline-rate PCM; CallAudio is invoked from a single goroutine per call.
type Handler interface {
	CallStarted(ctx context.Context, callID string, out AudioWriter) error
	CallAudio(ctx context.Context, callID string, frame []byte) error
	CallEnded(ctx context.Context, callID string)
}

// Server accepts AudioSocket connections from Asterisk, one per call, and
// bridges them to a [Handler].
type Server struct {
	addr          string
	handler       Handler
	telephonyRate int
	pipelineRate  int
	frameMs       int
	log           *slog.Logger

	mu sync.Mutex
	ln net.Listener
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithTelephonyRate overrides the inbound PCM sample rate. Asterisk must be
// configured to match.
func WithTelephonyRate(hz int) ServerOption {
	return func(s *Server) { s.telephonyRate = hz }
}

// WithPipelineRate overrides the sample rate inbound audio is resampled to
// before it reaches the handler.
func WithPipelineRate(hz int) ServerOption {
	return func(s *Server) { s.pipelineRate = hz }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// NewServer creates an AudioSocket server listening on addr once Serve is
// called.
func NewServer(addr string, h Handler, opts ...ServerOption) *Server {
	s := &Server{
		addr:          addr,
		handler:       h,
		telephonyRate: DefaultTelephonyRate,
		pipelineRate:  audio.PipelineRate,
		frameMs:       DefaultFrameMs,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve listens on the configured address and handles connections until ctx
// is cancelled. It returns after all in-flight call connections have
// finished.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("audiosocket: listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info("audiosocket server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var g errgroup.Group
	for {
		conn, err := ln.Accept()
		if err != nil {
			werr := g.Wait()
			if ctx.Err() != nil {
				return werr
			}
			return errors.Join(fmt.Errorf("audiosocket: accept: %w", err), werr)
		}
		g.Go(func() error {
			s.handleConn(ctx, conn)
			return nil
		})
	}
}

// Addr returns the bound listen address, or empty before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// handleConn runs one call connection to completion.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.log.With("remote", conn.RemoteAddr().String())

	// The first message identifies the call.
	msg, err := ReadMessage(conn)
	if err != nil {
		log.Warn("connection dropped before call UUID", "error", err)
		return
	}
	id, err := msg.CallID()
	if err != nil {
		log.Warn("rejecting connection with bad handshake", "error", err)
		return
	}
	callID := id.String()
	log = log.With("call_id", callID)

	out := &connWriter{
		conn:       conn,
		frameBytes: s.telephonyRate * audio.BytesPerSample * s.frameMs / 1000,
		frameDur:   time.Duration(s.frameMs) * time.Millisecond,
	}
	if err := s.handler.CallStarted(ctx, callID, out); err != nil {
		log.Error("call rejected", "error", err)
		WriteTerminate(conn)
		return
	}
	defer s.handler.CallEnded(ctx, callID)

	if err := s.readLoop(ctx, conn, callID); err != nil {
		log.Warn("call connection error", "error", err)
		return
	}
	log.Debug("call connection closed")
}

// readLoop consumes messages until hangup, re-framing inbound telephony
// audio into exact pipeline-rate frames for the handler. A trailing partial
// frame at hangup is dropped, matching the no-flush teardown rule.
func (s *Server) readLoop(ctx context.Context, conn net.Conn, callID string) error {
	telFrame := s.telephonyRate * audio.BytesPerSample * s.frameMs / 1000
	var acc []byte

	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := ReadMessage(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch msg.Kind {
		case KindTerminate:
			return nil
		case KindError:
			s.log.Warn("asterisk reported error on call",
				"call_id", callID, "code", msg.ErrorCode())
		case KindDTMF:
			s.log.Debug("dtmf received", "call_id", callID, "digit", string(msg.Payload))
		case KindAudio:
			acc = append(acc, msg.Payload...)
			for len(acc) >= telFrame {
				frame := audio.ResampleMono16(acc[:telFrame], s.telephonyRate, s.pipelineRate)
				acc = acc[telFrame:]
				if err := s.handler.CallAudio(ctx, callID, frame); err != nil {
					return fmt.Errorf("handle audio frame: %w", err)
				}
			}
		default:
			s.log.Debug("ignoring unknown message kind",
				"call_id", callID, "kind", fmt.Sprintf("0x%02x", msg.Kind))
		}
	}
}

// connWriter plays audio back over the call connection, pacing frames at
// their realtime duration. Writes are serialized; Asterisk interleaves
// whatever it receives, so the agent must not overlap playbacks itself.
type connWriter struct {
	mu         sync.Mutex
	conn       net.Conn
	frameBytes int
	frameDur   time.Duration
}

// Play implements AudioWriter.
func (w *connWriter) Play(ctx context.Context, pcm []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ticker := time.NewTicker(w.frameDur)
	defer ticker.Stop()

	for off := 0; off < len(pcm); off += w.frameBytes {
		end := off + w.frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := WriteAudio(w.conn, pcm[off:end]); err != nil {
			return err
		}
		if end == len(pcm) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Hangup implements AudioWriter.
func (w *connWriter) Hangup() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WriteTerminate(w.conn)
}
