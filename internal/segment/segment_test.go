package segment

import (
	"testing"

	"github.com/kestrelav/avaudio/internal/capmatrix"
)

func stereoMatrix() *capmatrix.Matrix {
	m := capmatrix.New()
	m.Probe(func(rate, channels int) int {
		if channels == 2 || channels == 6 {
			return channels
		}
		return 0
	})
	return m
}

func TestAddRejectsUnsupportedFormat(t *testing.T) {
	r := New()
	defer r.Exit()
	if _, err := r.Add(44100, 3, false, stereoMatrix()); err != ErrConfigRejected {
		t.Fatalf("got %v, want ErrConfigRejected", err)
	}
	if _, err := r.Add(96000, 2, false, stereoMatrix()); err != ErrConfigRejected {
		t.Fatalf("got %v, want ErrConfigRejected for unsupported rate", err)
	}
}

// Scenario 6: allocate 8 segments without draining; the ninth add fails.
func TestAddFailsWhenRingFull(t *testing.T) {
	r := New()
	defer r.Exit()
	m := stereoMatrix()
	for i := 0; i < Depth; i++ {
		if _, err := r.Add(44100, 2, false, m); err != nil {
			t.Fatalf("add %d: unexpected error %v", i, err)
		}
	}
	if _, err := r.Add(44100, 2, false, m); err != ErrNoSlot {
		t.Fatalf("9th add: got %v, want ErrNoSlot", err)
	}
}

func TestAddSetsHardwareFormatFromMatrix(t *testing.T) {
	r := New()
	defer r.Exit()
	seg, err := r.Add(44100, 6, false, stereoMatrix())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg.HwChannels != 6 || seg.HwRate != 44100 {
		t.Fatalf("got hw=(%d,%d), want (44100,6)", seg.HwRate, seg.HwChannels)
	}
	if !seg.FlushBuffers {
		t.Fatalf("newly allocated segment must start flush-marked")
	}
	if seg.PTS != SentinelPTS {
		t.Fatalf("newly allocated segment PTS must be SentinelPTS")
	}
}

func TestAdvanceReadDecrementsFilled(t *testing.T) {
	r := New()
	defer r.Exit()
	m := stereoMatrix()
	r.Add(44100, 2, false, m)
	r.Add(44100, 2, false, m)
	if r.Filled() != 2 {
		t.Fatalf("filled: got %d want 2", r.Filled())
	}
	r.AdvanceRead()
	if r.Filled() != 1 {
		t.Fatalf("filled after advance: got %d want 1", r.Filled())
	}
}

func TestAdvancePTSSentinelStaysSentinel(t *testing.T) {
	s := newSegment()
	s.HwRate, s.HwChannels = 48000, 2
	s.AdvancePTS(192000)
	if s.PTS != SentinelPTS {
		t.Fatalf("AdvancePTS must not move a sentinel PTS")
	}
}

func TestAdvancePTSAdvancesByTicks(t *testing.T) {
	s := newSegment()
	s.HwRate, s.HwChannels = 48000, 2
	s.PTS = 0
	s.AdvancePTS(48000 * 2 * 2) // one second of 48kHz stereo 16-bit
	if s.PTS != 90000 {
		t.Fatalf("got %d ticks, want 90000 (one second)", s.PTS)
	}
}
