package wire_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/murmelhq/murmel/internal/wire"
)

func TestFeedEverySplit(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	raw := wire.Encode(9, payload)

	for split := 1; split <= len(raw); split++ {
		d := wire.NewDecoder()
		var frames []wire.Frame

		for off := 0; off < len(raw); off += split {
			end := off + split
			if end > len(raw) {
				end = len(raw)
			}
			got, err := d.Feed(raw[off:end])
			if err != nil {
				t.Fatalf("split %d: %v", split, err)
			}
			frames = append(frames, got...)
		}

		if len(frames) != 1 {
			t.Fatalf("split %d: got %d frames, want 1", split, len(frames))
		}
		if frames[0].Type != 9 || !bytes.Equal(frames[0].Payload, payload) {
			t.Fatalf("split %d: frame mismatch: %+v", split, frames[0])
		}
	}
}

func TestFeedMultipleFramesInOneChunk(t *testing.T) {
	chunk := append(wire.Encode(1, []byte("one")), wire.Encode(2, []byte("two"))...)
	chunk = append(chunk, wire.Encode(3, nil)...)

	d := wire.NewDecoder()
	frames, err := d.Feed(chunk)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[0].Type != 1 || string(frames[0].Payload) != "one" {
		t.Fatalf("frame 0 mismatch: %+v", frames[0])
	}
	if frames[1].Type != 2 || string(frames[1].Payload) != "two" {
		t.Fatalf("frame 1 mismatch: %+v", frames[1])
	}
	if frames[2].Type != 3 || len(frames[2].Payload) != 0 {
		t.Fatalf("frame 2 mismatch: %+v", frames[2])
	}
	if d.Pending() != 0 {
		t.Fatalf("pending %d bytes after full drain", d.Pending())
	}
}

func TestFeedFrameSpanningChunks(t *testing.T) {
	a := wire.Encode(5, []byte("alpha"))
	b := wire.Encode(6, []byte("beta"))
	joined := append(append([]byte{}, a...), b...)

	// First chunk ends mid-payload of the second frame.
	cut := len(a) + 8
	d := wire.NewDecoder()

	frames, err := d.Feed(joined[:cut])
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 || frames[0].Type != 5 {
		t.Fatalf("expected only first frame, got %v", frames)
	}

	frames, err = d.Feed(joined[cut:])
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 || frames[0].Type != 6 || string(frames[0].Payload) != "beta" {
		t.Fatalf("expected second frame, got %v", frames)
	}
}

func TestFeedOversizedFrame(t *testing.T) {
	header := wire.Encode(0, nil)[:wire.HeaderSize]
	header[2] = 0xFF
	header[3] = 0xFF
	header[4] = 0xFF
	header[5] = 0xFF

	d := wire.NewDecoder()
	if _, err := d.Feed(header); !errors.Is(err, wire.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestWriterDropsAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w := wire.NewWriter(&buf)

	if err := w.WriteFrame(3, []byte("ping")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	before := buf.Len()

	w.Close()
	w.Close() // idempotent

	if err := w.WriteFrame(3, []byte("pong")); err != nil {
		t.Fatalf("WriteFrame after close: %v", err)
	}
	if buf.Len() != before {
		t.Fatalf("write after close reached the transport")
	}
}
