package remix

import (
	"math"
	"math/rand"
	"testing"
)

func silentLog(string, ...any) {}

func supportedPairs() [][2]int {
	pairs := [][2]int{{1, 1}, {2, 2}, {1, 2}, {2, 1}, {5, 6}}
	for in := 3; in <= 8; in++ {
		pairs = append(pairs, [2]int{in, 2})
	}
	return pairs
}

// I1: for all supported (in,out) and all frame counts, output size is exactly
// frames*out*2 bytes (frames*out samples of int16).
func TestRemixOutputSizeInvariant(t *testing.T) {
	for _, p := range supportedPairs() {
		inCh, outCh := p[0], p[1]
		for _, frames := range []int{0, 1, 7, 100} {
			in := make([]int16, frames*inCh)
			out := Remix(silentLog, in, inCh, outCh)
			if len(out) != frames*outCh {
				t.Fatalf("in=%d out=%d frames=%d: got %d samples, want %d", inCh, outCh, frames, len(out), frames*outCh)
			}
		}
	}
}

func TestMono2Stereo(t *testing.T) {
	out := Remix(silentLog, []int16{10, -20, 30}, 1, 2)
	want := []int16{10, 10, -20, -20, 30, 30}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("got %v want %v", out, want)
		}
	}
}

func TestStereo2Mono(t *testing.T) {
	out := Remix(silentLog, []int16{10, 20, -10, -30}, 2, 1)
	want := []int16{15, -20}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("got %v want %v", out, want)
		}
	}
}

func TestSixChannelDownmix(t *testing.T) {
	// L=1000 R=2000 Ls=3000 Rs=4000 C=5000 LFE=0.
	frame := []int16{1000, 2000, 3000, 4000, 5000, 0}
	out := Remix(silentLog, frame, 6, 2)
	wantL := int16((1000*400 + 3000*200 + 5000*300 + 0*300) / 1000)
	wantR := int16((2000*400 + 4000*200 + 5000*300 + 0*100) / 1000)
	if out[0] != wantL || out[1] != wantR {
		t.Fatalf("got L=%d R=%d want L=%d R=%d", out[0], out[1], wantL, wantR)
	}
}

func TestUpmix5to6ZerosSixthChannel(t *testing.T) {
	frame := []int16{1, 2, 3, 4, 5}
	out := Remix(silentLog, frame, 5, 6)
	for i := 0; i < 5; i++ {
		if out[i] != frame[i] {
			t.Fatalf("channel %d: got %d want %d", i, out[i], frame[i])
		}
	}
	if out[5] != 0 {
		t.Fatalf("sixth channel not silenced: got %d", out[5])
	}
}

func TestUnsupportedCombinationEmitsSilenceAndLogs(t *testing.T) {
	logged := false
	logf := func(format string, args ...any) { logged = true }
	out := Remix(logf, make([]int16, 9), 9, 2)
	if !logged {
		t.Fatalf("expected unsupported combination to log")
	}
	for _, s := range out {
		if s != 0 {
			t.Fatalf("expected silence, got %v", out)
		}
	}
}

// I2-adjacent: downmix never overflows int16 regardless of input extremes.
func TestDownmixClampsToInt16Range(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for inCh := 3; inCh <= 8; inCh++ {
		for trial := 0; trial < 200; trial++ {
			frame := make([]int16, inCh)
			for i := range frame {
				frame[i] = int16(rng.Intn(math.MaxUint16+1) - (math.MaxUint16+1)/2)
			}
			out := Remix(silentLog, frame, inCh, 2)
			for _, s := range out {
				if s < math.MinInt16 || s > math.MaxInt16 {
					t.Fatalf("inCh=%d: out-of-range sample %d", inCh, s)
				}
			}
		}
	}
}
