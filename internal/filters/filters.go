// Package filters implements the in-place 16-bit PCM sample filters: a
// software amplifier/mute stage, an RMS-based normaliser, and a peak
// compressor. All three operate in place on signed 16-bit sample
// slices and silently clamp at int16's range, mirroring
// original_source/audio.c's AudioSoftAmplifier/AudioNormalizer/
// AudioCompressor.
package filters

import "math"

const (
	// NormBlockSamples is the size of one RMS accumulation block.
	NormBlockSamples = 4096
	// NormWindowBlocks is the number of blocks averaged by the normaliser.
	NormWindowBlocks = 128
	// MinNormalizeFactor is the floor for the normaliser's smoothed factor.
	MinNormalizeFactor = 100
	// DefaultCompressorFactor is the compressor's initial factor (1000 = unity).
	DefaultCompressorFactor = 2000
	// UnityFactor represents no gain change (1000 = unity in per-mille units).
	UnityFactor = 1000
)

func clamp16(v int32) int16 {
	if v < math.MinInt16 {
		return math.MinInt16
	}
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(v)
}

// Amplify applies the software amplifier/mute stage in place. amplifier is
// in per-mille units (1000 = unity). When muted or amplifier is zero, the
// buffer is zeroed rather than scaled.
func Amplify(samples []int16, amplifier int, muted bool) {
	if muted || amplifier == 0 {
		for i := range samples {
			samples[i] = 0
		}
		return
	}
	for i, s := range samples {
		samples[i] = clamp16(int32(s) * int32(amplifier) / 1000)
	}
}

// Normalizer maintains a 128-block circular window of RMS sums over
// 4096-sample blocks and derives a smoothed gain factor from their
// average. It must be reset whenever the playback worker advances to a
// new segment (internal/worker).
type Normalizer struct {
	sums       [NormWindowBlocks]uint32
	index      int
	counter    int
	readyCount int

	factor    int // current per-mille factor, applied to the CURRENT chunk before it is updated
	maxFactor int
}

// NewNormalizer creates a normaliser with the given maximum factor
// (per-mille; caller-configurable via set_normalize).
func NewNormalizer(maxFactor int) *Normalizer {
	if maxFactor < UnityFactor {
		maxFactor = UnityFactor
	}
	return &Normalizer{factor: UnityFactor, maxFactor: maxFactor}
}

// SetMax updates the configurable ceiling on the smoothed factor.
func (n *Normalizer) SetMax(maxFactor int) {
	n.maxFactor = maxFactor
}

// Reset clears the accumulation window and restores the factor to unity on
// a segment switch, matching AudioResetNormalizer in
// original_source/audio.c, which sets AudioNormalizeFactor = 1000 along
// with clearing the averaging state.
func (n *Normalizer) Reset() {
	n.sums = [NormWindowBlocks]uint32{}
	n.index = 0
	n.counter = 0
	n.readyCount = 0
	n.factor = UnityFactor
}

// Process applies the normaliser in place, chunking the input into
// 4096-sample blocks so a buffer spanning multiple blocks accumulates and
// applies the factor block-by-block.
func (n *Normalizer) Process(samples []int16) {
	i := 0
	for i < len(samples) {
		end := i + (NormBlockSamples - n.counter)
		if end > len(samples) {
			end = len(samples)
		}
		chunk := samples[i:end]

		sum := n.sums[n.index]
		for _, s := range chunk {
			t := int32(s)
			sum += uint32(t*t) / NormBlockSamples
		}
		n.sums[n.index] = sum
		n.counter += len(chunk)

		// Apply the factor in effect BEFORE this block's smoothing update,
		// favoring continuity over an exact response to this block.
		applyFactor(chunk, n.factor)

		if n.counter >= NormBlockSamples {
			if n.readyCount < NormWindowBlocks {
				n.readyCount++
			} else {
				var avg uint64
				for _, s := range n.sums {
					avg += uint64(s)
				}
				avg /= NormWindowBlocks
				if avg > 0 {
					target := int((float64(math.MaxInt16) / 8) * 1000 / math.Sqrt(float64(avg)))
					n.factor = (n.factor*500 + target*500) / 1000
					if n.factor < MinNormalizeFactor {
						n.factor = MinNormalizeFactor
					}
					if n.factor > n.maxFactor {
						n.factor = n.maxFactor
					}
				}
			}
			n.index = (n.index + 1) % NormWindowBlocks
			n.counter = 0
			n.sums[n.index] = 0
		}
		i = end
	}
}

// Compressor implements the peak-based limiter.
type Compressor struct {
	factor    int
	maxFactor int
}

// NewCompressor creates a compressor with the given maximum factor
// (per-mille; caller-configurable via set_compression).
func NewCompressor(maxFactor int) *Compressor {
	c := &Compressor{maxFactor: maxFactor}
	c.Reset()
	return c
}

// SetMax updates the configurable ceiling on the compression factor.
func (c *Compressor) SetMax(maxFactor int) {
	c.maxFactor = maxFactor
	if c.factor > c.maxFactor {
		c.factor = c.maxFactor
	}
}

// Reset restores the initial factor, clamped to the configured maximum.
// Called on every segment switch (internal/worker).
func (c *Compressor) Reset() {
	c.factor = DefaultCompressorFactor
	if c.factor > c.maxFactor {
		c.factor = c.maxFactor
	}
}

// Process applies the compressor in place.
func (c *Compressor) Process(samples []int16) {
	peak := int32(0)
	for _, s := range samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak == 0 {
		return // silent, nothing to do
	}

	target := int(int32(math.MaxInt16) * 1000 / peak)
	newFactor := (c.factor*950 + target*50) / 1000
	if newFactor > target {
		newFactor = target // never raise above target: no clipping
	}
	if newFactor > c.maxFactor {
		newFactor = c.maxFactor
	}
	c.factor = newFactor

	applyFactor(samples, c.factor)
}

func applyFactor(samples []int16, factor int) {
	for i, s := range samples {
		samples[i] = clamp16(int32(s) * int32(factor) / 1000)
	}
}
