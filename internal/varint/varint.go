// Package varint implements the Mumble variable-length integer encoding
// used in voice tunnel headers.
//
// Values 0..0x7F take one byte. Wider positive values use a tiered
// prefix-bit scheme of two to five bytes. Negative values are encoded as
// the bitwise inverse behind a 0xF8 marker, with a one-byte 0xFC shortcut
// for -1..-4. The 0xF4 prefix (64-bit varint) is not part of this server's
// dialect and fails decode.
package varint

import "errors"

var (
	// Err64Bit is returned when a 0xF4-prefixed (64-bit) varint is decoded.
	Err64Bit = errors.New("varint: 64-bit varints are not supported")

	// ErrTruncated is returned when the buffer ends before the byte count
	// the leading byte declares.
	ErrTruncated = errors.New("varint: truncated buffer")

	// ErrMalformed is returned for a leading byte that matches no known
	// prefix pattern.
	ErrMalformed = errors.New("varint: malformed leading byte")
)

// Encode converts i to its varint representation.
func Encode(i int32) []byte {
	if i < 0 {
		i = ^i
		if i <= 0x3 {
			return []byte{0xFC | byte(i)}
		}
		return append([]byte{0xF8}, Encode(i)...)
	}

	switch {
	case i < 0x80:
		return []byte{byte(i)}
	case i < 0x4000:
		return []byte{byte(i>>8) | 0x80, byte(i)}
	case i < 0x200000:
		return []byte{byte(i>>16) | 0xC0, byte(i >> 8), byte(i)}
	case i < 0x10000000:
		return []byte{byte(i>>24) | 0xE0, byte(i >> 16), byte(i >> 8), byte(i)}
	default:
		return []byte{0xF0, byte(i >> 24), byte(i >> 16), byte(i >> 8), byte(i)}
	}
}

// Decode reads one varint from the front of b and returns the value along
// with the number of bytes consumed, so the caller can advance its cursor.
func Decode(b []byte) (int32, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrTruncated
	}

	v := b[0]
	switch {
	case v&0x80 == 0x00:
		return int32(v & 0x7F), 1, nil

	case v&0xC0 == 0x80:
		if len(b) < 2 {
			return 0, 0, ErrTruncated
		}
		return int32(v&0x3F)<<8 | int32(b[1]), 2, nil

	case v&0xF0 == 0xF0:
		switch v & 0xFC {
		case 0xF0:
			if len(b) < 5 {
				return 0, 0, ErrTruncated
			}
			i := int32(b[1])<<24 | int32(b[2])<<16 | int32(b[3])<<8 | int32(b[4])
			return i, 5, nil
		case 0xF8:
			inner, n, err := Decode(b[1:])
			if err != nil {
				return 0, 0, err
			}
			return ^inner, 1 + n, nil
		case 0xFC:
			return ^int32(v & 0x03), 1, nil
		case 0xF4:
			return 0, 0, Err64Bit
		default:
			return 0, 0, ErrMalformed
		}

	case v&0xF0 == 0xE0:
		if len(b) < 4 {
			return 0, 0, ErrTruncated
		}
		i := int32(v&0x0F)<<24 | int32(b[1])<<16 | int32(b[2])<<8 | int32(b[3])
		return i, 4, nil

	case v&0xE0 == 0xC0:
		if len(b) < 3 {
			return 0, 0, ErrTruncated
		}
		i := int32(v&0x1F)<<16 | int32(b[1])<<8 | int32(b[2])
		return i, 3, nil
	}

	return 0, 0, ErrMalformed
}
