package varint_test

import (
	"errors"
	"testing"

	"github.com/murmelhq/murmel/internal/varint"
)

func TestRoundTrip(t *testing.T) {
	values := []int32{
		0, 1, 0x7F,
		0x80, 0x3FFF,
		0x4000, 0x1FFFFF,
		0x200000, 0xFFFFFFF,
		0x10000000, 0x7FFFFFFF,
		-1, -2, -3, -4,
		-5, -129, -0x4001, -0x200001, -0x10000001, -2147483648,
	}

	for _, want := range values {
		enc := varint.Encode(want)
		got, n, err := varint.Decode(enc)
		if err != nil {
			t.Fatalf("Decode(Encode(%d)): %v", want, err)
		}
		if got != want {
			t.Fatalf("round trip %d: got %d", want, got)
		}
		if n != len(enc) {
			t.Fatalf("round trip %d: consumed %d of %d bytes", want, n, len(enc))
		}
	}
}

func TestEncodedWidths(t *testing.T) {
	cases := []struct {
		value int32
		width int
	}{
		{0, 1},
		{0x7F, 1},
		{0x80, 2},
		{0x4000, 3},
		{0x200000, 4},
		{0x10000000, 5},
		{-1, 1},
		{-4, 1},
		{-5, 2},
	}

	for _, c := range cases {
		if got := len(varint.Encode(c.value)); got != c.width {
			t.Fatalf("Encode(%d): width %d, want %d", c.value, got, c.width)
		}
	}
}

func TestDecodeTrailingBytesIgnored(t *testing.T) {
	buf := append(varint.Encode(300), 0xAA, 0xBB)
	got, n, err := varint.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != 300 || n != 2 {
		t.Fatalf("Decode: got (%d, %d), want (300, 2)", got, n)
	}
}

func TestDecode64BitRejected(t *testing.T) {
	_, _, err := varint.Decode([]byte{0xF4, 1, 2, 3, 4, 5, 6, 7, 8})
	if !errors.Is(err, varint.Err64Bit) {
		t.Fatalf("expected Err64Bit, got %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	bufs := [][]byte{
		nil,
		{0x80},
		{0xC0, 0x01},
		{0xE0, 0x01, 0x02},
		{0xF0, 0x01, 0x02, 0x03},
		{0xF8},
	}
	for _, b := range bufs {
		if _, _, err := varint.Decode(b); !errors.Is(err, varint.ErrTruncated) {
			t.Fatalf("Decode(% X): expected ErrTruncated, got %v", b, err)
		}
	}
}
