package voice_test

import (
	"bytes"
	"testing"

	"github.com/murmelhq/murmel/internal/voice"
)

func TestParseIncomingLegacyTerminator(t *testing.T) {
	// Header 0x00 (celt-alpha, target 0), sequence 5, then a lone
	// zero-length sub-frame header: a stream terminator with no payload.
	p, err := voice.ParseIncoming([]byte{0x00, 0x05, 0x00})
	if err != nil {
		t.Fatalf("ParseIncoming: %v", err)
	}
	if p.Codec != voice.CodecCELTAlpha || p.Target != 0 || p.Sequence != 5 {
		t.Fatalf("header mismatch: %+v", p)
	}
	if len(p.Frames) != 1 || !p.Frames[0].Terminator {
		t.Fatalf("terminator frame not recognised: %+v", p.Frames)
	}
	if !p.Terminated() {
		t.Fatalf("Terminated() false on terminator packet")
	}
}

func TestParseIncomingLegacyChain(t *testing.T) {
	// Two chained sub-frames: first header has the continuation bit set.
	data := []byte{0x00, 0x09, 0x82, 0xAA, 0xBB, 0x01, 0xCC}
	p, err := voice.ParseIncoming(data)
	if err != nil {
		t.Fatalf("ParseIncoming: %v", err)
	}
	if len(p.Frames) != 2 {
		t.Fatalf("want 2 frames, got %+v", p.Frames)
	}
	if !bytes.Equal(p.Frames[0].Data, []byte{0xAA, 0xBB}) {
		t.Fatalf("first frame mismatch: %x", p.Frames[0].Data)
	}
	if !bytes.Equal(p.Frames[1].Data, []byte{0xCC}) {
		t.Fatalf("second frame mismatch: %x", p.Frames[1].Data)
	}
	if p.Terminated() {
		t.Fatalf("Terminated() true without terminator")
	}
}

func TestParseIncomingOpus(t *testing.T) {
	// Opus header byte 0x80 (codec 4, target 0). Varint frame header
	// 0x2003 sets the terminator bit over a 3-byte frame: two-byte varint
	// 0xA0 0x03.
	data := []byte{0x80, 0x01, 0xA0, 0x03, 0x01, 0x02, 0x03}
	p, err := voice.ParseIncoming(data)
	if err != nil {
		t.Fatalf("ParseIncoming: %v", err)
	}
	if p.Codec != voice.CodecOpus {
		t.Fatalf("codec mismatch: %v", p.Codec)
	}
	if len(p.Frames) != 1 || !p.Frames[0].Terminator {
		t.Fatalf("opus terminator bit lost: %+v", p.Frames)
	}
	if !bytes.Equal(p.Frames[0].Data, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("frame data mismatch: %x", p.Frames[0].Data)
	}
}

func TestParseIncomingTruncatedFrame(t *testing.T) {
	// Sub-frame header promises 4 bytes, only 2 present.
	if _, err := voice.ParseIncoming([]byte{0x00, 0x01, 0x04, 0xAA, 0xBB}); err == nil {
		t.Fatalf("truncated sub-frame accepted")
	}
}

func TestEncodeOutgoingInsertsSpeaker(t *testing.T) {
	out := voice.EncodeOutgoing(voice.CodecOpus, 0, 101, 7, []byte{0x01, 0xFF})
	want := []byte{0x80, 101, 7, 0x01, 0xFF}
	if !bytes.Equal(out, want) {
		t.Fatalf("EncodeOutgoing = %x, want %x", out, want)
	}
}

func TestJitterBufferReordersAndDrops(t *testing.T) {
	jb := voice.NewJitterBuffer()
	jb.Put(10, voice.Frame{Data: []byte{1}})
	jb.Put(12, voice.Frame{Data: []byte{3}})
	jb.Put(11, voice.Frame{Data: []byte{2}})

	for i, want := range []byte{1, 2, 3} {
		f, ok := jb.Pop()
		if !ok || f.Data[0] != want {
			t.Fatalf("pop %d = %+v (%v), want data %d", i, f, ok, want)
		}
	}

	// Gap at 13, then a frame at 14.
	jb.Put(14, voice.Frame{Data: []byte{5}})
	if _, ok := jb.Pop(); ok {
		t.Fatalf("gap reported as present")
	}
	if f, ok := jb.Pop(); !ok || f.Data[0] != 5 {
		t.Fatalf("frame after gap lost: %+v (%v)", f, ok)
	}

	// Late arrival behind the read position is dropped.
	jb.Put(3, voice.Frame{Data: []byte{9}})
	if jb.Pending() != 0 {
		t.Fatalf("late frame buffered: %d pending", jb.Pending())
	}
}

func TestJitterBufferResetReprimes(t *testing.T) {
	jb := voice.NewJitterBuffer()
	jb.Put(40, voice.Frame{Data: []byte{1}})
	jb.Pop()

	jb.Reset()

	// After a reset the buffer accepts sequences behind the old read
	// position; a speaker's counter does not advance through silence.
	jb.Put(3, voice.Frame{Data: []byte{2}})
	if f, ok := jb.Pop(); !ok || f.Data[0] != 2 {
		t.Fatalf("frame after reset lost: %+v (%v)", f, ok)
	}
}

func TestEngineSecondSpurtAfterSilence(t *testing.T) {
	e := voice.NewEngine(0, 0)

	var started, ended []uint32
	e.OnTalkStart = func(n uint32) { started = append(started, n) }
	e.OnTalkEnd = func(n uint32) { ended = append(ended, n) }

	// First spurt, ended by an explicit terminator.
	e.Ingest(101, opusPacket(0, []byte{0xAA}, false))
	e.Tick()
	e.Ingest(101, opusPacket(1, nil, true))
	e.Tick()
	if len(started) != 1 || len(ended) != 1 {
		t.Fatalf("first spurt lifecycle wrong: starts %v ends %v", started, ended)
	}

	// Long silence. The tick loop keeps running but the speaker's
	// sequence counter stays where the terminator left it.
	for i := 0; i < 100; i++ {
		e.Tick()
	}

	// Second spurt resumes at the next client sequence.
	e.Ingest(101, opusPacket(2, []byte{0xBB}, false))
	e.Tick()
	if len(started) != 2 {
		t.Fatalf("second spurt never started: starts %v", started)
	}
	if !e.Talking(101) {
		t.Fatalf("Talking(101) false during second spurt")
	}
}

func TestEngineSpurtAfterMissLimitSilence(t *testing.T) {
	e := voice.NewEngine(0, 0)

	var started []uint32
	e.OnTalkStart = func(n uint32) { started = append(started, n) }

	// Spurt that dies to the miss limit instead of a terminator.
	e.Ingest(101, opusPacket(0, []byte{0xAA}, false))
	for i := 0; i <= voice.DefaultMissLimit; i++ {
		e.Tick()
	}

	for i := 0; i < 50; i++ {
		e.Tick()
	}

	e.Ingest(101, opusPacket(1, []byte{0xBB}, false))
	e.Tick()
	if len(started) != 2 {
		t.Fatalf("spurt after miss-limit silence never started: starts %v", started)
	}
}

func TestMixPCMClampsAndPassesThrough(t *testing.T) {
	a := []int16{32767, -32768, 100}
	b := []int16{32767, -32768, -50, 7}

	mixed := voice.MixPCM([][]int16{a, b})
	want := []int16{32767, -32768, 50, 7}
	for i := range want {
		if mixed[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, mixed[i], want[i])
		}
	}

	only := voice.MixPCM([][]int16{a})
	if &only[0] != &a[0] {
		t.Fatalf("single speaker was copied instead of passed through")
	}
	if voice.MixPCM(nil) != nil {
		t.Fatalf("empty mix not nil")
	}
}

func opusPacket(seq int32, data []byte, term bool) *voice.Packet {
	f := voice.Frame{Data: data, Terminator: term}
	return &voice.Packet{Codec: voice.CodecOpus, Sequence: seq, Frames: []voice.Frame{f}}
}

func TestEngineTalkSpurtLifecycle(t *testing.T) {
	e := voice.NewEngine(0, 0)

	var started, ended []uint32
	e.OnTalkStart = func(n uint32) { started = append(started, n) }
	e.OnTalkEnd = func(n uint32) { ended = append(ended, n) }

	e.Ingest(101, opusPacket(0, []byte{0xAA}, false))
	e.Tick()
	if len(started) != 1 || started[0] != 101 {
		t.Fatalf("talk start not fired: %v", started)
	}
	if !e.Talking(101) {
		t.Fatalf("Talking(101) false mid-spurt")
	}

	e.Ingest(101, opusPacket(1, nil, true))
	e.Tick()
	if len(ended) != 1 || ended[0] != 101 {
		t.Fatalf("talk end not fired on terminator: %v", ended)
	}
	if e.Talking(101) {
		t.Fatalf("Talking(101) true after terminator")
	}
}

func TestEngineMissLimitEndsSpurt(t *testing.T) {
	e := voice.NewEngine(0, 0)

	var ended int
	e.OnTalkEnd = func(uint32) { ended++ }

	e.Ingest(101, opusPacket(0, []byte{0xAA}, false))
	e.Tick() // consumes the one real frame

	for i := 0; i < voice.DefaultMissLimit-1; i++ {
		e.Tick()
	}
	if ended != 0 {
		t.Fatalf("spurt ended before the miss limit")
	}
	e.Tick()
	if ended != 1 {
		t.Fatalf("spurt did not end at the miss limit: %d", ended)
	}

	// Fully idle stream never re-fires.
	e.Tick()
	if ended != 1 {
		t.Fatalf("idle stream fired talk end again: %d", ended)
	}
}

func TestEngineMixesActiveSpeakers(t *testing.T) {
	voice.RegisterDecoder(voice.CodecOpus, func() voice.Decoder { return voice.PCMDecoder{} })

	e := voice.NewEngine(0, 0)
	var mixed [][]int16
	e.OnMixed = func(pcm []int16) { mixed = append(mixed, pcm) }

	// 100 and -50 as little-endian PCM.
	e.Ingest(101, opusPacket(0, []byte{100, 0}, false))
	e.Ingest(102, opusPacket(0, []byte{206, 255}, false))
	e.Tick()

	if len(mixed) != 1 || len(mixed[0]) != 1 {
		t.Fatalf("mix output missing: %v", mixed)
	}
	if mixed[0][0] != 50 {
		t.Fatalf("mixed sample = %d, want 50", mixed[0][0])
	}
}

func TestEngineReleaseEndsSpurt(t *testing.T) {
	e := voice.NewEngine(0, 0)
	var ended []uint32
	e.OnTalkEnd = func(n uint32) { ended = append(ended, n) }

	e.Ingest(101, opusPacket(0, []byte{0xAA}, false))
	e.Tick()
	e.Release(101)

	if len(ended) != 1 || ended[0] != 101 {
		t.Fatalf("release did not end spurt: %v", ended)
	}
	e.Release(101) // idempotent
	if len(ended) != 1 {
		t.Fatalf("double release fired again: %v", ended)
	}
}
