// Package voice handles the tunnelled audio path: packet demuxing, jitter
// buffering, talk-state tracking, decoding and mixing.
package voice

import (
	"errors"
	"fmt"

	"github.com/murmelhq/murmel/internal/varint"
)

// Codec ids carried in the voice packet header's high three bits.
type Codec uint8

const (
	CodecCELTAlpha Codec = 0
	CodecPing      Codec = 1
	CodecSpeex     Codec = 2
	CodecCELTBeta  Codec = 3
	CodecOpus      Codec = 4
)

// Known reports whether this server understands the codec. Packets with
// unknown codec ids are dropped, not errored.
func (c Codec) Known() bool {
	return c == CodecCELTAlpha || c == CodecOpus
}

func (c Codec) String() string {
	switch c {
	case CodecCELTAlpha:
		return "celt-alpha"
	case CodecPing:
		return "ping"
	case CodecSpeex:
		return "speex"
	case CodecCELTBeta:
		return "celt-beta"
	case CodecOpus:
		return "opus"
	}
	return fmt.Sprintf("codec(%d)", uint8(c))
}

var (
	// ErrShortPacket is returned for a voice payload too short to carry
	// its declared header or sub-frames.
	ErrShortPacket = errors.New("voice: short packet")
)

// Frame is one codec sub-frame. A Terminator frame ends the speaker's
// stream.
type Frame struct {
	Data       []byte
	Terminator bool
}

// Packet is a demuxed voice payload.
type Packet struct {
	Codec    Codec
	Target   uint8
	Session  uint32 // speaker; zero on client-originated packets
	Sequence int32
	Frames   []Frame

	// FrameBytes is the undecoded sub-frame region, kept so the relay path
	// can re-emit it without re-encoding.
	FrameBytes []byte
}

// Terminated reports whether any sub-frame carries the terminator mark.
func (p *Packet) Terminated() bool {
	for _, f := range p.Frames {
		if f.Terminator {
			return true
		}
	}
	return false
}

// ParseIncoming demuxes a client-originated voice payload: header byte
// (codec high 3 bits, whisper target low 5), varint sequence, then
// codec-specific sub-frames.
func ParseIncoming(data []byte) (*Packet, error) {
	if len(data) < 2 {
		return nil, ErrShortPacket
	}

	p := &Packet{
		Codec:  Codec(data[0]&0xE0) >> 5,
		Target: data[0] & 0x1F,
	}

	seq, n, err := varint.Decode(data[1:])
	if err != nil {
		return nil, fmt.Errorf("voice: sequence: %w", err)
	}
	p.Sequence = seq
	p.FrameBytes = data[1+n:]

	p.Frames, err = SplitFrames(p.Codec, p.FrameBytes)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// EncodeOutgoing rebuilds the voice payload for fan-out, inserting the
// speaker's session number between the header byte and the sequence. The
// sub-frame region passes through untouched.
func EncodeOutgoing(codec Codec, target uint8, speaker uint32, sequence int32, frameBytes []byte) []byte {
	head := byte(codec)<<5 | target&0x1F
	sess := varint.Encode(int32(speaker))
	seq := varint.Encode(sequence)

	out := make([]byte, 0, 1+len(sess)+len(seq)+len(frameBytes))
	out = append(out, head)
	out = append(out, sess...)
	out = append(out, seq...)
	return append(out, frameBytes...)
}

// SplitFrames walks the sub-frame region. The legacy CELT format chains
// single-byte headers (low 7 bits length, bit 7 "more frames follow",
// zero length terminating the stream); the Opus format is one varint
// header (low 13 bits length, bit 0x2000 the terminator) with no chaining.
func SplitFrames(codec Codec, b []byte) ([]Frame, error) {
	var frames []Frame

	switch codec {
	case CodecOpus:
		if len(b) == 0 {
			return nil, nil
		}
		head, n, err := varint.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("voice: opus header: %w", err)
		}
		length := int(head & 0x1FFF)
		b = b[n:]
		if len(b) < length {
			return nil, ErrShortPacket
		}
		frames = append(frames, Frame{
			Data:       b[:length],
			Terminator: head&0x2000 != 0,
		})

	default:
		for len(b) > 0 {
			head := b[0]
			length := int(head & 0x7F)
			more := head&0x80 != 0
			b = b[1:]

			if length == 0 {
				frames = append(frames, Frame{Terminator: true})
				break
			}
			if len(b) < length {
				return nil, ErrShortPacket
			}
			frames = append(frames, Frame{Data: b[:length]})
			b = b[length:]

			if !more {
				break
			}
		}
	}

	return frames, nil
}
