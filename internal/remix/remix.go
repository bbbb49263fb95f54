// Package remix implements the channel remix stage: mono<->stereo, 3-8
// channel surround downmix to stereo with fixed weights, 5->6 upmix, and
// an identity/silence fallback. It operates on whole interleaved 16-bit
// frames, grounded on original_source/audio.c's
// AudioMono2Stereo/AudioStereo2Mono/AudioSurround2Stereo/AudioUpmix and the
// NR50/NR51 weighted channel routing in the teacher's apu.go.
package remix

import "math"

// Logf is the logging hook invoked when a remix combination is not
// supported and silence is emitted instead.
type Logf func(format string, args ...any)

// weights holds the per-mille contribution of each input channel to the
// output L and R channels for a surround->stereo downmix.
type weights struct {
	l, r [8]int32
}

var surroundWeights = map[int]weights{
	3: {l: [8]int32{600, 0, 400}, r: [8]int32{0, 600, 400}},
	4: {l: [8]int32{600, 0, 400, 0}, r: [8]int32{0, 600, 0, 400}},
	5: {l: [8]int32{500, 0, 200, 0, 300}, r: [8]int32{0, 500, 0, 200, 300}},
	6: {l: [8]int32{400, 0, 200, 0, 300, 300}, r: [8]int32{0, 400, 0, 200, 300, 100}},
	7: {l: [8]int32{400, 0, 200, 0, 300, 100, 0}, r: [8]int32{0, 400, 0, 200, 300, 0, 100}},
	8: {l: [8]int32{400, 0, 150, 0, 250, 100, 100, 0}, r: [8]int32{0, 400, 0, 150, 250, 100, 0, 100}},
}

func clamp16(v int32) int16 {
	if v < math.MinInt16 {
		return math.MinInt16
	}
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(v)
}

// Remix converts an interleaved 16-bit PCM buffer from inChannels to
// outChannels, dispatching on the (in, out) pair. The returned slice
// always has exactly (len(in)/inChannels)*outChannels samples, satisfying
// the whole-frame invariant even for the unsupported-combination
// fallback.
func Remix(logf Logf, in []int16, inChannels, outChannels int) []int16 {
	if inChannels <= 0 || outChannels <= 0 {
		return nil
	}
	frames := len(in) / inChannels
	out := make([]int16, frames*outChannels)

	switch {
	case inChannels == outChannels:
		copy(out, in)

	case inChannels == 1 && outChannels == 2:
		for f := 0; f < frames; f++ {
			s := in[f]
			out[2*f] = s
			out[2*f+1] = s
		}

	case inChannels == 2 && outChannels == 1:
		for f := 0; f < frames; f++ {
			out[f] = int16((int32(in[2*f]) + int32(in[2*f+1])) / 2)
		}

	case outChannels == 2 && inChannels >= 3 && inChannels <= 8:
		w := surroundWeights[inChannels]
		for f := 0; f < frames; f++ {
			base := f * inChannels
			var l, r int32
			for ch := 0; ch < inChannels; ch++ {
				s := int32(in[base+ch])
				l += s * w.l[ch]
				r += s * w.r[ch]
			}
			out[2*f] = clamp16(l / 1000)
			out[2*f+1] = clamp16(r / 1000)
		}

	case inChannels == 5 && outChannels == 6:
		for f := 0; f < frames; f++ {
			copy(out[f*6:f*6+5], in[f*5:f*5+5])
			out[f*6+5] = 0
		}

	default:
		if logf != nil {
			logf("remix: unsupported %d -> %d channel conversion, emitting silence", inChannels, outChannels)
		}
		// out is already zero-valued: silence of the correct size.
	}

	return out
}
