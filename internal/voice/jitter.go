package voice

// JitterBuffer reorders sub-frames by sequence number so the tick loop can
// consume them at a steady cadence. One buffer per speaker.
type JitterBuffer struct {
	frames map[int32]Frame
	head   int32
	primed bool
}

// NewJitterBuffer returns an empty buffer. The first Put primes the read
// position.
func NewJitterBuffer() *JitterBuffer {
	return &JitterBuffer{frames: make(map[int32]Frame)}
}

// Put stores a frame under its sequence number. Frames arriving behind the
// read position are late and get dropped.
func (j *JitterBuffer) Put(seq int32, f Frame) {
	if !j.primed {
		j.head = seq
		j.primed = true
	}
	if seq < j.head {
		return
	}
	j.frames[seq] = f
}

// Pop advances the read position by one tick and returns the frame stored
// there. ok is false for a gap (lost or not-yet-arrived frame) and before
// the buffer is primed.
func (j *JitterBuffer) Pop() (Frame, bool) {
	if !j.primed {
		return Frame{}, false
	}
	f, ok := j.frames[j.head]
	if ok {
		delete(j.frames, j.head)
	}
	j.head++
	return f, ok
}

// Reset clears buffered frames and un-primes the read position, so the
// next Put re-primes at the speaker's current sequence. Called between
// talk spurts: sequence numbers only advance while the speaker talks, so
// a head left running through silence would outrun the counter and reject
// the next spurt's frames as late.
func (j *JitterBuffer) Reset() {
	j.frames = make(map[int32]Frame)
	j.head = 0
	j.primed = false
}

// Pending reports how many frames are buffered ahead of the read position.
func (j *JitterBuffer) Pending() int {
	return len(j.frames)
}
