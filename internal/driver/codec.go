package driver

import (
	"encoding/binary"

	"github.com/kestrelav/avaudio/internal/filters"
)

// bytesToInt16 reinterprets a little-endian PCM byte slice as signed
// 16-bit samples. An odd trailing byte is not converted; in the write loop
// it stays unchanged in the slice and is written as-is.
func bytesToInt16(p []byte) []int16 {
	n := len(p) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(p[2*i:]))
	}
	return out
}

func int16ToBytes(samples []int16, p []byte) {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(p[2*i:], uint16(s))
	}
}

// amplifyInt16 is a thin rename so driver.go reads as a self-contained
// write-loop description; the clamping logic itself lives in
// internal/filters. Callers are expected to pass filters.UnityFactor as
// the default per-mille gain rather than zero.
func amplifyInt16(samples []int16, amplifier int, muted bool) {
	filters.Amplify(samples, amplifier, muted)
}
