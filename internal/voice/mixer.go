package voice

// MixPCM sums the speakers' samples into one buffer, clamping each sample
// to the int16 range. A single speaker passes through without copying.
func MixPCM(streams [][]int16) []int16 {
	switch len(streams) {
	case 0:
		return nil
	case 1:
		return streams[0]
	}

	size := 0
	for _, s := range streams {
		if len(s) > size {
			size = len(s)
		}
	}

	out := make([]int16, size)
	for i := 0; i < size; i++ {
		var sum int32
		for _, s := range streams {
			if i < len(s) {
				sum += int32(s[i])
			}
		}
		if sum > 32767 {
			sum = 32767
		} else if sum < -32768 {
			sum = -32768
		}
		out[i] = int16(sum)
	}
	return out
}
