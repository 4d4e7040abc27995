// Package audiosocket implements the Asterisk AudioSocket wire protocol:
// a minimal TCP framing Asterisk uses to stream a call's audio to an
// external service and accept audio back for playback.
//
// Every message is a 3-byte header followed by a payload:
//
//	[Kind:1][PayloadLen:2 big-endian][Payload:PayloadLen]
//
// Asterisk opens one TCP connection per call, sends a UUID message
// identifying the call, then streams signed linear PCM16 audio messages
// until the call ends, which it signals with a terminate message (or by
// closing the connection).
package audiosocket

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Message kinds defined by the AudioSocket protocol.
const (
	// KindTerminate signals call hangup. Carries no payload. Sent by
	// either side.
	KindTerminate = 0x00

	// KindUUID carries the 16-byte call UUID. Always the first message
	// Asterisk sends on a new connection.
	KindUUID = 0x01

	// KindDTMF carries a single DTMF digit as one ASCII byte.
	KindDTMF = 0x03

	// KindAudio carries signed linear 16-bit little-endian mono PCM.
	KindAudio = 0x10

	// KindError carries a one-byte error code from Asterisk.
	KindError = 0xff
)

// headerSize is the fixed message header: kind byte plus payload length.
const headerSize = 3

// maxPayload caps a single message payload. The protocol's length field
// allows 64 KiB; real Asterisk audio messages are 20ms chunks well under
// 1 KiB, so anything near the cap indicates a corrupt stream.
const maxPayload = 65535

// Message is one decoded AudioSocket message.
type Message struct {
	Kind    byte
	Payload []byte
}

// IsTerminate reports whether the message signals call hangup.
func (m Message) IsTerminate() bool { return m.Kind == KindTerminate }

// CallID decodes the payload of a UUID message.
func (m Message) CallID() (uuid.UUID, error) {
	if m.Kind != KindUUID {
		return uuid.Nil, fmt.Errorf("audiosocket: message kind 0x%02x is not a UUID message", m.Kind)
	}
	id, err := uuid.FromBytes(m.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("audiosocket: invalid call UUID payload: %w", err)
	}
	return id, nil
}

// ErrorCode returns the Asterisk error code carried by an error message,
// or zero for other kinds.
func (m Message) ErrorCode() byte {
	if m.Kind != KindError || len(m.Payload) == 0 {
		return 0
	}
	return m.Payload[0]
}

// ReadMessage reads one complete message from r. It returns io.EOF only on
// a clean boundary; a connection dropped mid-message yields
// io.ErrUnexpectedEOF.
func ReadMessage(r io.Reader) (Message, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("audiosocket: read header: %w", err)
	}

	m := Message{Kind: hdr[0]}
	n := binary.BigEndian.Uint16(hdr[1:3])
	if n == 0 {
		return m, nil
	}
	m.Payload = make([]byte, n)
	if _, err := io.ReadFull(r, m.Payload); err != nil {
		return Message{}, fmt.Errorf("audiosocket: read %d-byte payload for kind 0x%02x: %w", n, m.Kind, err)
	}
	return m, nil
}

// WriteMessage writes one message to w.
func WriteMessage(w io.Writer, m Message) error {
	if len(m.Payload) > maxPayload {
		return fmt.Errorf("audiosocket: payload of %d bytes exceeds protocol maximum %d", len(m.Payload), maxPayload)
	}
	buf := make([]byte, headerSize+len(m.Payload))
	buf[0] = m.Kind
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(m.Payload)))
	copy(buf[headerSize:], m.Payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("audiosocket: write kind 0x%02x: %w", m.Kind, err)
	}
	return nil
}

// WriteAudio writes pcm as a single audio message.
func WriteAudio(w io.Writer, pcm []byte) error {
	return WriteMessage(w, Message{Kind: KindAudio, Payload: pcm})
}

// WriteTerminate signals hangup to the peer.
func WriteTerminate(w io.Writer) error {
	return WriteMessage(w, Message{Kind: KindTerminate})
}
