// Package wire turns a raw byte stream into length-prefixed protocol frames
// and back. Every frame carries a 6-byte big-endian header: a uint16 message
// type id followed by a uint32 payload length.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	// HeaderSize is the fixed frame header length.
	HeaderSize = 6

	// MaxPayload bounds a single frame payload. Anything larger is treated
	// as a malformed stream rather than an allocation request.
	MaxPayload = 8 * 1024 * 1024
)

// ErrFrameTooLarge is returned when a header declares a payload above MaxPayload.
var ErrFrameTooLarge = errors.New("wire: frame payload exceeds limit")

// Frame is one decoded protocol frame.
type Frame struct {
	Type    uint16
	Payload []byte
}

// Encode builds the on-wire representation of a single frame.
func Encode(typ uint16, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], typ)
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Decoder accumulates stream chunks and emits complete frames. It keeps a
// single pending request at a time: first the 6-byte header, then exactly
// the payload length the header declared. Leftover bytes stay buffered for
// the next request.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends p to the internal buffer and returns every frame that became
// complete. A frame split across any number of chunks is reassembled; several
// frames arriving in one chunk are all returned.
func (d *Decoder) Feed(p []byte) ([]Frame, error) {
	d.buf = append(d.buf, p...)

	var frames []Frame
	for {
		if len(d.buf) < HeaderSize {
			return frames, nil
		}
		length := binary.BigEndian.Uint32(d.buf[2:6])
		if length > MaxPayload {
			return frames, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
		}
		total := HeaderSize + int(length)
		if len(d.buf) < total {
			return frames, nil
		}

		payload := make([]byte, length)
		copy(payload, d.buf[HeaderSize:total])
		frames = append(frames, Frame{
			Type:    binary.BigEndian.Uint16(d.buf[0:2]),
			Payload: payload,
		})
		d.buf = d.buf[total:]
	}
}

// Pending reports how many buffered bytes await the next complete frame.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Writer frames outbound messages onto an underlying transport. After Close
// the writer silently drops frames instead of erroring, so teardown paths
// racing a final write stay idempotent.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes one framed message. Frames written after Close are
// dropped without error.
func (w *Writer) WriteFrame(typ uint16, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	_, err := w.w.Write(Encode(typ, payload))
	return err
}

// WriteRaw writes pre-framed bytes, used for the voice tunnel fast path.
func (w *Writer) WriteRaw(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	_, err := w.w.Write(b)
	return err
}

// Close marks the writer non-writable. Safe to call more than once. The
// underlying transport is closed by whoever owns it.
func (w *Writer) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}
