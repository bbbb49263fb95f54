// Package segment implements the ring-of-rings scheduler: a bounded queue
// of 8 reconfigurable playback segments, each a byte ring, that lets
// format changes be pipelined without glitches. Grounded on
// original_source/audio.c's AudioRingRing/AudioRingAdd/AudioRingInit and the
// teacher's apu.go ring-reset-not-realloc discipline.
package segment

import (
	"errors"
	"sync/atomic"

	"github.com/kestrelav/avaudio/internal/capmatrix"
	"github.com/kestrelav/avaudio/internal/ringbuf"
)

const (
	// Depth is the ring-of-rings depth.
	Depth = 8
	// RingSize is the byte capacity of each segment's ring:
	// 3*5*7*8*2*1000 = 1,680,000 bytes, ~2s of 8-channel 16-bit audio.
	RingSize = 3 * 5 * 7 * 8 * 2 * 1000
	// SentinelPTS marks an unknown PTS: the most-negative int64.
	SentinelPTS = int64(-1) << 63
)

// ErrConfigRejected is returned when a (rate, channels) pair is not
// supported by the hardware capability matrix.
var ErrConfigRejected = errors.New("segment: unsupported rate/channel combination")

// ErrNoSlot is returned when all Depth segments are currently in flight.
var ErrNoSlot = errors.New("segment: no free ring-of-rings slot")

// Segment is one entry of the ring-of-rings.
type Segment struct {
	FlushBuffers bool
	UseAC3       bool
	PacketSize   int
	InRate       int
	InChannels   int
	HwRate       int
	HwChannels   int
	PTS          int64
	Ring         *ringbuf.Ring
}

func newSegment() *Segment {
	return &Segment{Ring: ringbuf.New(RingSize), PTS: SentinelPTS}
}

// reset prepares a segment for reuse without reallocating its ring.
func (s *Segment) reset() {
	s.FlushBuffers = true
	s.Ring.Reset()
	s.PTS = SentinelPTS
	s.PacketSize = 0
}

// AdvancePTS advances the segment's PTS by the 90kHz-tick equivalent of n
// bytes written at its hardware format.
func (s *Segment) AdvancePTS(n int) {
	if s.PTS == SentinelPTS {
		return
	}
	frameBytes := s.HwChannels * 2
	if frameBytes == 0 {
		return
	}
	s.PTS += int64(n) * 90000 / int64(s.HwRate*frameBytes)
}

// RingOfRings is the bounded queue of playback segments. Write-index
// mutation is the producer's exclusive right;
// read-index mutation is the worker's exclusive right; Filled is the only
// field touched by both, via a sequentially-consistent atomic.
type RingOfRings struct {
	segments [Depth]*Segment
	writeIdx int
	readIdx  int
	filled   atomic.Int32
}

// New allocates a ring-of-rings with all segment rings pre-allocated.
func New() *RingOfRings {
	r := &RingOfRings{}
	for i := range r.segments {
		r.segments[i] = newSegment()
	}
	return r
}

// Exit releases every segment's ring buffer.
func (r *RingOfRings) Exit() {
	for _, s := range r.segments {
		s.Ring.Del()
	}
	r.filled.Store(0)
	r.writeIdx = 0
	r.readIdx = 0
}

// Add allocates the next write segment for (rate, channels, useAC3),
// rejecting unsupported formats or a full queue. Producer-only.
func (r *RingOfRings) Add(rate, channels int, useAC3 bool, matrix *capmatrix.Matrix) (*Segment, error) {
	if !matrix.RateSupported(rate) {
		return nil, ErrConfigRejected
	}
	hw, ok := matrix.Lookup(rate, channels)
	if !ok {
		return nil, ErrConfigRejected
	}
	if r.filled.Load() == Depth {
		return nil, ErrNoSlot
	}

	r.writeIdx = (r.writeIdx + 1) % Depth
	seg := r.segments[r.writeIdx]
	seg.reset()
	seg.UseAC3 = useAC3
	seg.InRate = rate
	seg.InChannels = channels
	seg.HwRate = rate
	seg.HwChannels = hw

	r.filled.Add(1)
	return seg, nil
}

// CurrentWrite returns the segment the producer is currently filling.
// Producer-only.
func (r *RingOfRings) CurrentWrite() *Segment {
	return r.segments[r.writeIdx]
}

// CurrentRead returns the segment the worker is currently draining.
// Worker-only.
func (r *RingOfRings) CurrentRead() *Segment {
	return r.segments[r.readIdx]
}

// Filled returns the number of segments currently queued.
func (r *RingOfRings) Filled() int {
	return int(r.filled.Load())
}

// AdvanceRead moves the read index to the next segment and decrements the
// filled count. Worker-only; must only be called when Filled() > 0.
func (r *RingOfRings) AdvanceRead() *Segment {
	r.readIdx = (r.readIdx + 1) % Depth
	r.filled.Add(-1)
	return r.segments[r.readIdx]
}

// ReadIndex returns the worker's current read index (for flush-scan peeking).
func (r *RingOfRings) ReadIndex() int {
	return r.readIdx
}

// SegmentAt returns the segment at a raw ring index, used by the
// flush-coalescing scan in internal/worker which peeks ahead of the read
// cursor without advancing it.
func (r *RingOfRings) SegmentAt(idx int) *Segment {
	return r.segments[idx%Depth]
}

// SetFilled is used only by the flush-coalescing scan to atomically commit
// a bulk advance of the read index together with the corresponding drop in
// filled count.
func (r *RingOfRings) SetFilled(n int) {
	r.filled.Store(int32(n))
}

// SetReadIndex is used only by the flush-coalescing scan, which computes
// the new read index itself while walking ahead.
func (r *RingOfRings) SetReadIndex(idx int) {
	r.readIdx = idx % Depth
}
