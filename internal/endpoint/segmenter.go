// Package endpoint implements the utterance endpointer: a streaming
// classifier that turns a continuous stream of fixed-duration PCM16
// telephony frames into discrete utterance spans suitable for batch
// speech-to-text decoding.
//
// The central type is [Segmenter], a per-call state machine driven by an
// energy [Gate]. While idle it keeps a short preroll ring of recent audio;
// when a frame crosses the energy threshold it opens an utterance seeded
// with that preroll, and it finalizes the utterance either after a
// configurable run of trailing silence or when a maximum duration is
// reached. Utterances whose speech run is too short are discarded as noise
// bursts rather than finalized.
//
// A Segmenter is owned exclusively by one call's processing goroutine.
// Stepping it never blocks: decode of finalized spans happens elsewhere.
package endpoint

import (
	"fmt"
	"time"
)

// The default segmentation tunables. They are calibrated for telephony
// speech: the silence window matches typical inter-sentence pauses so
// utterances correspond to complete thoughts, the minimum duration filters
// coughs and line clicks, and the maximum duration bounds decoder latency
// and memory for a caller who never pauses.
const (
	DefaultSampleRate = 16000
	DefaultFrameMs    = 20
	DefaultPrerollMs  = 200
	DefaultMinMs      = 250
	DefaultSilenceMs  = 500
	DefaultMaxMs      = 12000

	bytesPerSample = 2 // PCM16 mono
)

// State is the segmentation state of a call.
type State int

const (
	// StateIdle means no utterance is active; incoming audio only feeds
	// the preroll ring.
	StateIdle State = iota

	// StateSpeechActive means an utterance is open and the most recent
	// frame was speech-like.
	StateSpeechActive

	// StateTrailingSilence means an utterance is open but sub-threshold
	// frames are accumulating towards the silence cutoff.
	StateTrailingSilence
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSpeechActive:
		return "SPEECH_ACTIVE"
	case StateTrailingSilence:
		return "TRAILING_SILENCE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds the segmentation tunables for one call. All values are fixed
// for the lifetime of the call.
type Config struct {
	// SampleRate is the PCM sample rate in Hz. Default 16000.
	SampleRate int

	// FrameMs is the fixed duration of each inbound frame in milliseconds.
	// Default 20.
	FrameMs int

	// EnergyThreshold is the speech/silence amplitude threshold passed to
	// [Gate]. Zero means [DefaultEnergyThreshold].
	EnergyThreshold int

	// PrerollMs is how much pre-onset audio is kept and prepended to each
	// utterance. Default 200.
	PrerollMs int

	// MinMs is the minimum speech-run duration for an utterance to be
	// finalized; shorter runs are discarded as noise. Default 250.
	MinMs int

	// SilenceMs is the contiguous trailing-silence duration that finalizes
	// an utterance. Default 500.
	SilenceMs int

	// MaxMs is the speech duration at which an utterance is force-finalized
	// regardless of silence. Default 12000.
	MaxMs int
}

// withDefaults returns cfg with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FrameMs == 0 {
		c.FrameMs = DefaultFrameMs
	}
	if c.EnergyThreshold == 0 {
		c.EnergyThreshold = DefaultEnergyThreshold
	}
	if c.PrerollMs == 0 {
		c.PrerollMs = DefaultPrerollMs
	}
	if c.MinMs == 0 {
		c.MinMs = DefaultMinMs
	}
	if c.SilenceMs == 0 {
		c.SilenceMs = DefaultSilenceMs
	}
	if c.MaxMs == 0 {
		c.MaxMs = DefaultMaxMs
	}
	return c
}

// Segment is a finalized utterance span. It owns its PCM bytes: the
// segmenter's buffer is reset when the segment is extracted.
type Segment struct {
	// PCM is the utterance audio as 16-bit signed little-endian mono PCM
	// at the configured sample rate, preroll included.
	PCM []byte

	// Duration is the span length derived from the PCM byte count.
	Duration time.Duration

	// Forced is true when the segment was finalized by the max-duration
	// cutoff rather than by trailing silence.
	Forced bool
}

// Segmenter is the per-call utterance segmentation state machine. It is not
// safe for concurrent use; drive it from the call's single processing
// goroutine.
type Segmenter struct {
	cfg        Config
	gate       Gate
	frameBytes int
	bytesPerMs int

	preroll *prerollRing
	buf     *FrameBuffer

	state        State
	seedMs       int // audio seeded from the preroll ring at onset
	silenceRunMs int
	utteranceMs  int // buffered audio since onset, seed included
}

// NewSegmenter creates a segmenter for the given config. Zero config fields
// take their defaults; invalid combinations return an error.
func NewSegmenter(cfg Config) (*Segmenter, error) {
	cfg = cfg.withDefaults()
	if cfg.SampleRate < 0 || cfg.FrameMs <= 0 || cfg.PrerollMs < 0 {
		return nil, fmt.Errorf("endpoint: invalid config: sample_rate=%d frame_ms=%d preroll_ms=%d", cfg.SampleRate, cfg.FrameMs, cfg.PrerollMs)
	}
	if cfg.SilenceMs <= 0 || cfg.MaxMs <= 0 {
		return nil, fmt.Errorf("endpoint: invalid config: silence_ms=%d max_ms=%d must be positive", cfg.SilenceMs, cfg.MaxMs)
	}
	bytesPerMs := cfg.SampleRate * bytesPerSample / 1000
	if bytesPerMs <= 0 {
		return nil, fmt.Errorf("endpoint: sample rate %d Hz is below 1 kHz", cfg.SampleRate)
	}
	frameBytes := cfg.FrameMs * bytesPerMs
	// The ring is written one whole frame at a time, and its snapshot seeds
	// the frame buffer at onset. Align its capacity down to a whole number
	// of frames so the seed always satisfies the whole-frame invariant even
	// when preroll_ms is not a multiple of frame_ms.
	prerollBytes := cfg.PrerollMs * bytesPerMs
	prerollBytes -= prerollBytes % frameBytes
	return &Segmenter{
		cfg:        cfg,
		gate:       Gate{Threshold: cfg.EnergyThreshold},
		frameBytes: frameBytes,
		bytesPerMs: bytesPerMs,
		preroll:    newPrerollRing(prerollBytes),
		buf:        NewFrameBuffer(frameBytes),
		state:      StateIdle,
	}, nil
}

// FrameBytes returns the required byte length of each frame passed to Step.
func (s *Segmenter) FrameBytes() int { return s.frameBytes }

// State returns the current segmentation state.
func (s *Segmenter) State() State { return s.state }

// Step consumes one fixed-duration frame and advances the state machine.
// When the frame completes an utterance it returns the finalized segment
// and true; otherwise the returned segment is the zero value.
//
// Frames must be exactly [Segmenter.FrameBytes] long. Partial frames are
// rejected, never repaired.
func (s *Segmenter) Step(frame []byte) (Segment, bool, error) {
	if len(frame) != s.frameBytes {
		return Segment{}, false, fmt.Errorf("endpoint: frame is %d bytes, want exactly %d", len(frame), s.frameBytes)
	}

	if s.state == StateIdle {
		if !s.gate.Classify(frame) {
			s.preroll.write(frame)
			return Segment{}, false, nil
		}
		// Speech onset: open an utterance seeded with the preroll audio
		// captured before this frame. The seed may be shorter than
		// PrerollMs when the call started (or the last finalize happened)
		// within the preroll window.
		seed := s.preroll.snapshot()
		s.preroll.reset()
		if len(seed) > 0 {
			if err := s.buf.Append(seed); err != nil {
				return Segment{}, false, err
			}
		}
		if err := s.buf.Append(frame); err != nil {
			return Segment{}, false, err
		}
		s.seedMs = len(seed) / s.bytesPerMs
		s.utteranceMs = s.seedMs + s.cfg.FrameMs
		s.silenceRunMs = 0
		s.state = StateSpeechActive
		return Segment{}, false, nil
	}

	// An utterance is open: every frame is buffered, speech and silence alike.
	if err := s.buf.Append(frame); err != nil {
		return Segment{}, false, err
	}
	s.utteranceMs += s.cfg.FrameMs

	if s.gate.Classify(frame) {
		s.state = StateSpeechActive
		s.silenceRunMs = 0
	} else {
		s.state = StateTrailingSilence
		s.silenceRunMs += s.cfg.FrameMs
	}

	// Forced cutoff takes precedence: it fires regardless of the silence
	// run, bounding worst-case decode latency and memory.
	if s.speechRunMs() >= s.cfg.MaxMs {
		return s.finalize(true), true, nil
	}

	if s.silenceRunMs >= s.cfg.SilenceMs {
		if s.speechRunMs()-s.silenceRunMs < s.cfg.MinMs {
			// Too short to be a real utterance: a noise burst. Nothing is
			// emitted, not even partially.
			s.discard()
			return Segment{}, false, nil
		}
		return s.finalize(false), true, nil
	}

	return Segment{}, false, nil
}

// speechRunMs is the duration since speech onset, excluding the preroll seed.
func (s *Segmenter) speechRunMs() int {
	return s.utteranceMs - s.seedMs
}

// finalize extracts the open utterance as a [Segment] and returns the
// machine to IDLE.
func (s *Segmenter) finalize(forced bool) Segment {
	pcm := s.buf.Take()
	seg := Segment{
		PCM:      pcm,
		Duration: time.Duration(len(pcm)/s.bytesPerMs) * time.Millisecond,
		Forced:   forced,
	}
	s.toIdle()
	return seg
}

// discard drops the open utterance without emitting anything.
func (s *Segmenter) discard() {
	s.buf.Reset()
	s.toIdle()
}

func (s *Segmenter) toIdle() {
	s.state = StateIdle
	s.seedMs = 0
	s.silenceRunMs = 0
	s.utteranceMs = 0
}

// Reset returns the segmenter to its initial state, discarding any open
// utterance and the preroll ring. Used on call teardown: in-flight partial
// utterances are dropped, never flushed.
func (s *Segmenter) Reset() {
	s.buf.Reset()
	s.preroll.reset()
	s.toIdle()
}
