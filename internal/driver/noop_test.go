package driver

import "testing"

func TestNoopDrainsWhateverIsAvailable(t *testing.T) {
	seg := testSegment(t, 48000, 2)
	seg.Ring.Write([]byte{1, 2, 3, 4, 5, 6})

	n := NewNoop()
	status, err := n.ThreadTick(seg, WriteParams{}, false)
	if err != nil || status != TickRunning {
		t.Fatalf("expected Running/nil, got %v/%v", status, err)
	}
	if seg.Ring.UsedBytes() != 0 {
		t.Fatalf("expected Noop to drain the entire available block")
	}
}

func TestNoopReportsUnderrunOnEmptyRing(t *testing.T) {
	seg := testSegment(t, 48000, 2)
	n := NewNoop()
	status, _ := n.ThreadTick(seg, WriteParams{}, false)
	if status != TickUnderrun {
		t.Fatalf("expected Underrun on an empty ring, got %v", status)
	}
}

func TestNoopAdvancesPTS(t *testing.T) {
	seg := testSegment(t, 48000, 2)
	seg.PTS = 0
	seg.Ring.Write(make([]byte, 192)) // 48 frames @ 2ch*2B
	n := NewNoop()
	if _, err := n.ThreadTick(seg, WriteParams{}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg.PTS <= 0 {
		t.Fatalf("expected PTS to advance past zero, got %d", seg.PTS)
	}
}

func TestNoopSetupEchoesRequestedFormat(t *testing.T) {
	n := NewNoop()
	res, err := n.Setup(44100, 6, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Rate != 44100 || res.Channels != 6 || res.Forced {
		t.Fatalf("Noop must echo the requested format unmodified, got %+v", res)
	}
}
