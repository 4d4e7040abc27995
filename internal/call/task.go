// Package call tracks live telephone calls and runs the per-call audio
// pipeline: each call owns a segmenter stepped on the transport goroutine
// and a decode worker that submits finalized utterances for transcription.
//
// Segmentation and decoding are decoupled by a per-call queue so that a
// slow decode never stalls inbound audio, while utterances of one call are
// still decoded strictly in the order they were spoken.
package call

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/arivox/arivox/internal/endpoint"
	"github.com/arivox/arivox/internal/observe"
)

// ErrEnded is returned by Feed when the call has been torn down.
var ErrEnded = errors.New("call: call has ended")

// pendingDepth bounds the per-call queue of finalized segments awaiting
// decode. At the 12s utterance cap this is over a minute of backlog; a full
// queue means the decoder is hopelessly behind and further segments are
// dropped rather than stalling the audio read loop.
const pendingDepth = 8

// Finalizer submits one finalized utterance for decoding and event
// delivery. Implemented by dispatch.Dispatcher.
type Finalizer interface {
	Finalize(ctx context.Context, callID string, seg endpoint.Segment) error
}

// task is the pipeline of a single call.
type task struct {
	id      string
	seg     *endpoint.Segmenter
	metrics *observe.Metrics
	log     *slog.Logger

	mu     sync.Mutex
	closed bool

	pending chan endpoint.Segment
	done    chan struct{}
}

func newTask(id string, seg *endpoint.Segmenter, metrics *observe.Metrics, log *slog.Logger) *task {
	return &task{
		id:      id,
		seg:     seg,
		metrics: metrics,
		log:     log.With("call_id", id),
		pending: make(chan endpoint.Segment, pendingDepth),
		done:    make(chan struct{}),
	}
}

// feed steps one audio frame through the segmenter and queues any finalized
// segment for decoding. Called from the call's transport goroutine only.
func (t *task) feed(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrEnded
	}

	before := t.seg.State()
	seg, ok, err := t.seg.Step(frame)
	if err != nil {
		return err
	}
	t.metrics.FramesProcessed.Add(ctx, 1)

	if !ok {
		if before != endpoint.StateIdle && t.seg.State() == endpoint.StateIdle {
			// The open utterance collapsed without producing a segment:
			// a sub-minimum noise burst.
			t.metrics.UtterancesDiscarded.Add(ctx, 1)
		}
		return nil
	}

	select {
	case t.pending <- seg:
	default:
		t.metrics.EventsDropped.Add(ctx, 1)
		t.log.Warn("decode backlog full, dropping finalized utterance",
			"duration", seg.Duration, "forced", seg.Forced)
	}
	return nil
}

// run consumes queued segments and submits them to the finalizer one at a
// time, preserving spoken order for this call. Returns when the queue is
// closed and drained or ctx is cancelled.
func (t *task) run(ctx context.Context, fin Finalizer) {
	defer close(t.done)
	for {
		select {
		case <-ctx.Done():
			return
		case seg, ok := <-t.pending:
			if !ok {
				return
			}
			if t.isClosed() {
				// The call ended while this segment sat in the queue; its
				// event would be dropped anyway, so skip the decode.
				t.metrics.EventsDropped.Add(ctx, 1)
				continue
			}
			if err := fin.Finalize(ctx, t.id, seg); err != nil {
				if ctx.Err() != nil {
					return
				}
				t.log.Error("utterance finalize failed", "error", err)
			}
		}
	}
}

func (t *task) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// stop tears the pipeline down: the open utterance is discarded, no further
// frames are accepted, and queued segments are skipped rather than decoded.
// A decode already in flight finishes; its event is suppressed by the
// dispatcher's liveness check.
func (t *task) stop() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.seg.Reset()
	close(t.pending)
	t.mu.Unlock()
	<-t.done
}
