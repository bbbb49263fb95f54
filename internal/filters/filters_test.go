package filters

import (
	"math"
	"math/rand"
	"testing"
)

func TestAmplifyMuteZeroesBuffer(t *testing.T) {
	samples := []int16{1, 2, 3, math.MaxInt16, math.MinInt16}
	Amplify(samples, 1000, true)
	for _, s := range samples {
		if s != 0 {
			t.Fatalf("muted amplify left nonzero sample: %v", samples)
		}
	}
}

func TestAmplifyZeroGainZeroesBuffer(t *testing.T) {
	samples := []int16{100, -100, 5000}
	Amplify(samples, 0, false)
	for _, s := range samples {
		if s != 0 {
			t.Fatalf("zero-gain amplify left nonzero sample: %v", samples)
		}
	}
}

func TestAmplifyUnityIsIdentity(t *testing.T) {
	samples := []int16{100, -100, 5000, math.MaxInt16, math.MinInt16}
	want := append([]int16(nil), samples...)
	Amplify(samples, 1000, false)
	for i := range samples {
		if samples[i] != want[i] {
			t.Fatalf("unity amplify changed sample %d: got %d want %d", i, samples[i], want[i])
		}
	}
}

func TestAmplifyClampsToInt16Range(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 1000; trial++ {
		s := int16(rng.Intn(math.MaxUint16+1) - (math.MaxUint16+1)/2)
		gain := rng.Intn(10001)
		buf := []int16{s}
		Amplify(buf, gain, false)
		if buf[0] < math.MinInt16 || buf[0] > math.MaxInt16 {
			t.Fatalf("amplify produced out-of-range sample %d for input %d gain %d", buf[0], s, gain)
		}
	}
}

func TestCompressorNeverExceedsInt16Range(t *testing.T) {
	c := NewCompressor(5000)
	rng := rand.New(rand.NewSource(2))
	for trial := 0; trial < 200; trial++ {
		buf := make([]int16, 64)
		for i := range buf {
			buf[i] = int16(rng.Intn(math.MaxUint16+1) - (math.MaxUint16+1)/2)
		}
		c.Process(buf)
		for _, s := range buf {
			if s < math.MinInt16 || s > math.MaxInt16 {
				t.Fatalf("compressor produced out-of-range sample %d", s)
			}
		}
	}
}

func TestCompressorSilentBufferNoOp(t *testing.T) {
	c := NewCompressor(5000)
	buf := make([]int16, 16)
	c.Process(buf)
	for _, s := range buf {
		if s != 0 {
			t.Fatalf("compressor touched a silent buffer: %v", buf)
		}
	}
}

func TestCompressorResetRestoresInitialFactor(t *testing.T) {
	c := NewCompressor(5000)
	buf := []int16{100, -100, 50}
	c.Process(buf)
	c.Reset()
	if c.factor != DefaultCompressorFactor {
		t.Fatalf("reset factor: got %d, want %d", c.factor, DefaultCompressorFactor)
	}
}

func TestNormalizerClampsToInt16Range(t *testing.T) {
	n := NewNormalizer(3000)
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 50; trial++ {
		buf := make([]int16, 4096)
		for i := range buf {
			buf[i] = int16(rng.Intn(math.MaxUint16+1) - (math.MaxUint16+1)/2)
		}
		n.Process(buf)
		for _, s := range buf {
			if s < math.MinInt16 || s > math.MaxInt16 {
				t.Fatalf("normalizer produced out-of-range sample %d", s)
			}
		}
	}
}

func TestNormalizerNotReadyAppliesUnityFirstBlock(t *testing.T) {
	n := NewNormalizer(3000)
	buf := make([]int16, 4096)
	for i := range buf {
		buf[i] = 1000
	}
	n.Process(buf)
	for i, s := range buf {
		if s != 1000 {
			t.Fatalf("sample %d changed during warm-up: got %d want 1000", i, s)
		}
	}
}

func TestNormalizerResetRestoresUnityFactor(t *testing.T) {
	n := NewNormalizer(3000)
	n.factor = 1500
	n.Reset()
	if n.factor != UnityFactor {
		t.Fatalf("reset must restore the factor to unity: got %d, want %d", n.factor, UnityFactor)
	}
	if n.readyCount != 0 || n.counter != 0 {
		t.Fatalf("reset did not clear accumulation state")
	}
}
