package engine

import "encoding/binary"

// bytesToInt16 reinterprets a little-endian interleaved PCM byte slice as
// signed 16-bit samples for the remix/filter pipeline. Mirrors
// internal/driver/codec.go's narrow byte<->int16 bridge; duplicated rather
// than exported because each package's copy sits at a different stage of
// the pipeline (write-time volume vs. enqueue-time remix/filter) and
// neither needs the other's.
func bytesToInt16(p []byte) []int16 {
	n := len(p) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(p[2*i:]))
	}
	return out
}

func int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}
