package avsync

import (
	"testing"

	"github.com/kestrelav/avaudio/internal/capmatrix"
	"github.com/kestrelav/avaudio/internal/segment"
)

func stereoSegment(t *testing.T) *segment.Segment {
	t.Helper()
	r := segment.New()
	m := capmatrix.New()
	m.Probe(func(rate, channels int) int {
		if channels == 2 {
			return 2
		}
		return 0
	})
	seg, err := r.Add(48000, 2, false, m)
	if err != nil {
		t.Fatalf("ring.Add: %v", err)
	}
	return seg
}

func TestStartThresholdFloorsAtPeriodBytes(t *testing.T) {
	got := StartThreshold(4096, 48000, 2, 0, 0)
	if got != 4096 {
		t.Fatalf("got %d, want period floor 4096", got)
	}
}

func TestStartThresholdUsesBufferTimeWhenLarger(t *testing.T) {
	// 336ms * 48000*2*2 bytes/s / 1000 = 64512 bytes, well above a small period.
	got := StartThreshold(256, 48000, 2, 336, 0)
	want := int64(48000 * 2 * 2 * 336 / 1000)
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestStartThresholdClampsToRingThird(t *testing.T) {
	got := StartThreshold(256, 48000, 8, 100000, 0)
	want := int64(segment.RingSize) / 3
	if got != want {
		t.Fatalf("got %d, want ring/3 = %d", got, want)
	}
}

// I7: when video_ready is false, the worker does not transition to running
// until the write segment holds more than 4x the start threshold.
func TestShouldStartRequiresForcedThresholdWithoutVideoReady(t *testing.T) {
	c := New()
	if c.ShouldStart(false, 4*1000, 1000) {
		t.Fatalf("exactly 4x threshold must not force a start (strictly greater required)")
	}
	if !c.ShouldStart(false, 4*1000+1, 1000) {
		t.Fatalf("expected forced start just above 4x threshold")
	}
}

func TestShouldStartGatesOnVideoReadyAtOneThreshold(t *testing.T) {
	c := New()
	if c.ShouldStart(false, 1001, 1000) {
		t.Fatalf("must not start on data alone without video_ready")
	}
	c.videoReady = true
	if c.ShouldStart(false, 1000, 1000) {
		t.Fatalf("exactly 1x threshold must not start")
	}
	if !c.ShouldStart(false, 1001, 1000) {
		t.Fatalf("expected gated start once video ready and over threshold")
	}
}

func TestShouldStartNeverFiresWhileAlreadyRunning(t *testing.T) {
	c := New()
	c.videoReady = true
	if c.ShouldStart(true, 1_000_000, 1) {
		t.Fatalf("must not re-signal start while already running")
	}
}

func TestVideoReadyWithUnknownPTSJustLatchesReady(t *testing.T) {
	c := New()
	seg := stereoSegment(t)
	seg.PTS = segment.SentinelPTS
	if start := c.VideoReady(0, seg, false, 336, 0, 1000); start {
		t.Fatalf("unexpected immediate start with unknown segment PTS")
	}
	if !c.IsVideoReady() {
		t.Fatalf("video_ready must be latched even with unknown PTS")
	}
}

// Scenario 5: video PTS ~2s ahead of audio_pts creates a pending skip that
// a subsequent enqueue must consume, and start is deferred.
func TestVideoReadyCommitsPendingSkipWhenVideoAheadOfBuffer(t *testing.T) {
	c := New()
	seg := stereoSegment(t)
	seg.PTS = 2_000_000 // arbitrary base PTS in ticks
	seg.Ring.Write(make([]byte, 4*48000*2*2/1000))

	videoPTS := seg.PTS + 2*90000 // ~2s ahead of the buffer's leading edge
	c.VideoReady(videoPTS, seg, false, 336, 0, 1_000_000)

	before := c.PendingSkip()
	if before == 0 {
		t.Fatalf("expected a nonzero pending skip when video leads audio by ~2s")
	}

	drop := c.ConsumeSkip(4096)
	if drop != 4096 {
		t.Fatalf("expected ConsumeSkip to drop the full requested amount, got %d", drop)
	}
	if c.PendingSkip() != before-4096 {
		t.Fatalf("pending skip should be reduced by exactly the consumed amount, got %d want %d", c.PendingSkip(), before-4096)
	}
}

func TestVideoReadyIgnoresSkipAbove2Seconds(t *testing.T) {
	c := New()
	seg := stereoSegment(t)
	seg.PTS = 10_000_000
	videoPTS := seg.PTS + 10*90000 // 10s ahead, outside the committable window
	c.VideoReady(videoPTS, seg, false, 0, 0, 1000)
	if c.PendingSkip() != 0 {
		t.Fatalf("a >2s gap must not be committed as a skip, got pendingSkip=%d", c.PendingSkip())
	}
}

func TestResetClearsVideoReadyAndPendingSkip(t *testing.T) {
	c := New()
	c.videoReady = true
	c.pendingSkip = 123
	c.Reset()
	if c.IsVideoReady() || c.PendingSkip() != 0 {
		t.Fatalf("Reset must clear both video_ready and pending_skip")
	}
}

func TestGetDelayZeroUnlessRunningAndSettled(t *testing.T) {
	seg := stereoSegment(t)
	if GetDelay(false, true, 500, seg) != 0 {
		t.Fatalf("must be zero when not running")
	}
	if GetDelay(true, false, 500, seg) != 0 {
		t.Fatalf("must be zero when a reconfiguration is pending (filled != 0)")
	}
	if GetDelay(true, true, 0, nil) != 0 {
		t.Fatalf("must be zero with no read segment")
	}
}

func TestGetDelayAddsBufferedTicks(t *testing.T) {
	seg := stereoSegment(t)
	seg.Ring.Write(make([]byte, 48000*2*2/10)) // 100ms of 48kHz stereo
	got := GetDelay(true, true, 1000, seg)
	want := int64(1000) + int64(48000*2*2/10)*90000/int64(48000*2*2)
	if got != want {
		t.Fatalf("got %d want %d", got, want)
	}
}

func TestGetClockSentinelWhenSegmentPTSUnknown(t *testing.T) {
	seg := stereoSegment(t)
	seg.PTS = segment.SentinelPTS
	if got := GetClock(seg, 500); got != segment.SentinelPTS {
		t.Fatalf("got %d, want SentinelPTS", got)
	}
}

// Round-trip: set_clock(x); get_clock() returns x - get_delay().
func TestGetClockRoundTripsWithSetClock(t *testing.T) {
	seg := stereoSegment(t)
	seg.PTS = 5_000_000
	delay := int64(2000)
	if got := GetClock(seg, delay); got != seg.PTS-delay {
		t.Fatalf("got %d, want %d", got, seg.PTS-delay)
	}
}
