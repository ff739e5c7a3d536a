package voice

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultTick is the frame cadence the engine consumes at.
	DefaultTick = 10 * time.Millisecond

	// DefaultMissLimit is how many consecutive concealed ticks end a talk
	// spurt without an explicit terminator.
	DefaultMissLimit = 20
)

// Engine drives the per-speaker jitter buffers on a fixed cadence,
// tracking each speaker's talk state and, when someone is listening,
// decoding and mixing the active streams.
//
// Callbacks are set before Run and invoked from the tick goroutine.
type Engine struct {
	tick      time.Duration
	missLimit int

	// OnTalkStart fires when a speaker transitions Idle -> Talking.
	OnTalkStart func(session uint32)
	// OnTalkEnd fires on terminator or after missLimit concealed ticks.
	OnTalkEnd func(session uint32)
	// OnMixed receives the mixed PCM for a tick. Leaving it nil keeps the
	// engine on the cheap path: talk state only, no decode, no mix.
	OnMixed func(pcm []int16)

	mu      sync.Mutex
	streams map[uint32]*stream
}

type stream struct {
	codec    Codec
	jb       *JitterBuffer
	dec      Decoder
	noDec    bool // decoder lookup already failed for this codec
	lastGood []byte
	missed   int
	talking  bool
}

// NewEngine builds an engine with the given cadence and miss limit; zero
// values pick the defaults.
func NewEngine(tick time.Duration, missLimit int) *Engine {
	if tick <= 0 {
		tick = DefaultTick
	}
	if missLimit <= 0 {
		missLimit = DefaultMissLimit
	}
	return &Engine{
		tick:      tick,
		missLimit: missLimit,
		streams:   make(map[uint32]*stream),
	}
}

// Ingest buffers a demuxed voice packet under the speaker's session
// number. Packets with unknown codecs are dropped. Multi-frame packets
// occupy consecutive sequence slots.
func (e *Engine) Ingest(number uint32, p *Packet) {
	if !p.Codec.Known() {
		log.Trace().Str("module", "voice").Uint32("session", number).
			Stringer("codec", p.Codec).Msg("packet with unknown codec dropped")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.streams[number]
	if !ok {
		s = &stream{jb: NewJitterBuffer(), codec: p.Codec}
		e.streams[number] = s
	}
	if s.codec != p.Codec {
		s.codec = p.Codec
		s.dec = nil
		s.noDec = false
	}

	seq := p.Sequence
	for _, f := range p.Frames {
		s.jb.Put(seq, f)
		seq++
	}
}

// Release drops a speaker's stream, firing OnTalkEnd if they were mid-
// spurt. Called on session teardown.
func (e *Engine) Release(number uint32) {
	e.mu.Lock()
	s, ok := e.streams[number]
	if ok {
		delete(e.streams, number)
	}
	e.mu.Unlock()

	if ok && s.talking && e.OnTalkEnd != nil {
		e.OnTalkEnd(number)
	}
}

// Run ticks until the context is cancelled. A late wakeup runs as many
// catch-up ticks as the missed wall time covers, so talk-state timing does
// not drift under scheduler pressure.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			for now.Sub(last) >= e.tick {
				e.Tick()
				last = last.Add(e.tick)
			}
		}
	}
}

// Tick consumes one frame slot from every stream and advances talk state.
func (e *Engine) Tick() {
	e.mu.Lock()

	var (
		ended   []uint32
		started []uint32
		pcms    [][]int16
	)
	mix := e.OnMixed != nil

	for number, s := range e.streams {
		f, ok := s.jb.Pop()

		if !ok {
			// Gap. Idle streams just sit; talking streams conceal with the
			// last good frame until the miss limit ends the spurt.
			if !s.talking {
				continue
			}
			s.missed++
			if s.missed >= e.missLimit {
				s.talking = false
				s.lastGood = nil
				s.jb.Reset()
				ended = append(ended, number)
				continue
			}
			if mix && s.lastGood != nil {
				if pcm := e.decode(number, s, s.lastGood); pcm != nil {
					pcms = append(pcms, pcm)
				}
			}
			continue
		}

		if f.Terminator {
			if s.talking {
				s.talking = false
				ended = append(ended, number)
			}
			s.missed = 0
			s.lastGood = nil
			s.jb.Reset()
			continue
		}

		s.missed = 0
		s.lastGood = f.Data
		if !s.talking {
			s.talking = true
			started = append(started, number)
		}
		if mix {
			if pcm := e.decode(number, s, f.Data); pcm != nil {
				pcms = append(pcms, pcm)
			}
		}
	}
	e.mu.Unlock()

	for _, n := range started {
		if e.OnTalkStart != nil {
			e.OnTalkStart(n)
		}
	}
	for _, n := range ended {
		if e.OnTalkEnd != nil {
			e.OnTalkEnd(n)
		}
	}
	if mix && len(pcms) > 0 {
		e.OnMixed(MixPCM(pcms))
	}
}

// Talking reports whether the speaker is currently mid-spurt.
func (e *Engine) Talking(number uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.streams[number]
	return ok && s.talking
}

func (e *Engine) decode(number uint32, s *stream, frame []byte) []int16 {
	if s.dec == nil {
		if s.noDec {
			return nil
		}
		dec, ok := NewDecoder(s.codec)
		if !ok {
			s.noDec = true
			return nil
		}
		s.dec = dec
	}
	pcm, err := s.dec.Decode(frame)
	if err != nil {
		log.Trace().Err(err).Str("module", "voice").Uint32("session", number).
			Msg("frame decode failed")
		return nil
	}
	return pcm
}
