package voice

import (
	"encoding/binary"
	"sync"
)

// Decoder turns one encoded sub-frame into 16-bit PCM samples.
type Decoder interface {
	Decode(frame []byte) ([]int16, error)
}

// DecoderFactory builds a fresh decoder. Each speaker stream gets its own
// instance since codec decoders carry state between frames.
type DecoderFactory func() Decoder

var (
	decoderMu sync.RWMutex
	decoders  = make(map[Codec]DecoderFactory)
)

// RegisterDecoder installs a factory for a codec, replacing any previous
// registration. Deployments without a native codec library leave codecs
// unregistered; those streams still relay and track talk state, they just
// contribute nothing to the mix.
func RegisterDecoder(c Codec, f DecoderFactory) {
	decoderMu.Lock()
	decoders[c] = f
	decoderMu.Unlock()
}

// NewDecoder builds a decoder for the codec, if one is registered.
func NewDecoder(c Codec) (Decoder, bool) {
	decoderMu.RLock()
	f, ok := decoders[c]
	decoderMu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

// PCMDecoder treats the frame bytes as raw little-endian 16-bit samples.
// Used for loopback testing and trusted ingest paths.
type PCMDecoder struct{}

func (PCMDecoder) Decode(frame []byte) ([]int16, error) {
	out := make([]int16, len(frame)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(frame[2*i:]))
	}
	return out, nil
}
