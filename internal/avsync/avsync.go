// Package avsync implements the audio/video synchronisation logic: the
// start-threshold computation, start-gating on enqueue, sample-accurate
// skip/advance against a supplied video PTS, and the monotonic audio clock
// exposed to the rest of the system. Grounded on spec §4.F's pseudocode and
// original_source/audio.c's AudioVideoIsReady/AudioSkip/AudioStartThreshold
// variables (the excerpted source predates the function bodies that set
// them, so the arithmetic here follows spec.md's explicit formulas
// verbatim rather than guessing at a missing C body).
package avsync

import (
	"github.com/kestrelav/avaudio/internal/segment"
)

// videoFrameSkipTicks is the hard-coded "15 video frames at 50Hz" constant
// from spec §4.F's skip_ticks formula (15*20*90). spec §9 flags this as
// approximate for non-50Hz video and explicitly says to keep the constant
// rather than parameterise it.
const videoFrameSkipTicks = 15 * 20 * 90

// maxSkipTicks bounds a single video_ready skip to under 2 seconds; larger
// gaps are not committed as a skip (they likely indicate a PTS discontinuity
// rather than genuine drift).
const maxSkipTicks = 2 * 90000

// Controller holds the producer-side sync state: whether the downstream
// video pipeline has signalled readiness, and any skip debt not yet fully
// absorbed by buffered samples. All state here is producer-owned; only the
// façade's Enqueue/VideoReady/FlushBuffers call into it, never the worker.
type Controller struct {
	videoReady  bool
	pendingSkip int64 // bytes of audio still owed to a committed video skip
}

// New returns a freshly reset sync controller.
func New() *Controller {
	return &Controller{}
}

// Reset clears video-readiness and any pending skip debt. Called by
// FlushBuffers per spec §4.F ("reset video_ready and pending_skip").
func (c *Controller) Reset() {
	c.videoReady = false
	c.pendingSkip = 0
}

// IsVideoReady reports whether the video pipeline has signalled readiness.
func (c *Controller) IsVideoReady() bool {
	return c.videoReady
}

// PendingSkip returns the outstanding skip debt in bytes.
func (c *Controller) PendingSkip() int64 {
	return c.pendingSkip
}

// ConsumeSkip is called by Enqueue before writing n newly-produced bytes:
// it reports how many of those bytes must be dropped (not written) to pay
// down the pending skip debt, and reduces the debt accordingly.
func (c *Controller) ConsumeSkip(n int) int {
	if c.pendingSkip <= 0 || n <= 0 {
		return 0
	}
	drop := c.pendingSkip
	if drop > int64(n) {
		drop = int64(n)
	}
	c.pendingSkip -= drop
	return int(drop)
}

// StartThreshold computes the bytes of buffered audio required before the
// worker may begin writing, per spec §4.F:
//
//	min_bytes = period_size_in_bytes
//	target_ms = audio_buffer_time + max(0, video_audio_delay/90)
//	delay_bytes = rate * channels * 2 * target_ms / 1000
//	start_threshold = max(min_bytes, delay_bytes)
//	start_threshold = min(start_threshold, RING_SIZE/3)
func StartThreshold(periodBytes, rate, channels, bufferTimeMS int, videoAudioDelay int64) int64 {
	extraMS := videoAudioDelay / 90
	if extraMS < 0 {
		extraMS = 0
	}
	targetMS := int64(bufferTimeMS) + extraMS
	delayBytes := int64(rate) * int64(channels) * 2 * targetMS / 1000
	threshold := int64(periodBytes)
	if delayBytes > threshold {
		threshold = delayBytes
	}
	if ceiling := int64(segment.RingSize) / 3; threshold > ceiling {
		threshold = ceiling
	}
	return threshold
}

// ShouldStart implements the start-gating rule evaluated on every enqueue
// (spec §4.F): a forced start once the write segment holds more than 4x
// the start threshold regardless of video readiness, or a gated start once
// video is ready and the segment holds more than 1x the threshold.
func (c *Controller) ShouldStart(running bool, usedBytes int64, startThreshold int64) bool {
	if running {
		return false
	}
	if usedBytes > 4*startThreshold {
		return true
	}
	return c.videoReady && usedBytes > startThreshold
}

// VideoReady implements spec §4.F's video_ready(video_pts) operation. seg
// is the current write segment; running reports whether the worker is
// already playing. It returns whether this call should itself start the
// worker (the caller is responsible for actually calling worker.Start).
func (c *Controller) VideoReady(videoPTS int64, seg *segment.Segment, running bool, bufferTimeMS int, videoAudioDelay int64, startThreshold int64) (startNow bool) {
	if seg.PTS == segment.SentinelPTS {
		c.videoReady = true
		return false
	}

	frameBytes := seg.HwChannels * 2
	usedBytes := int64(seg.Ring.UsedBytes())
	audioPTS := seg.PTS
	if frameBytes > 0 && seg.HwRate > 0 {
		audioPTS -= usedBytes * 90000 / int64(seg.HwRate*frameBytes)
	}

	if !running {
		skipTicks := videoPTS - videoFrameSkipTicks - int64(bufferTimeMS)*90 - audioPTS + videoAudioDelay
		if skipTicks > 0 && skipTicks < maxSkipTicks && frameBytes > 0 {
			skipBytes := skipTicks * int64(seg.HwRate*frameBytes) / 90000
			inBuffer := skipBytes
			if inBuffer > usedBytes {
				inBuffer = usedBytes
			}
			c.pendingSkip += skipBytes - inBuffer
			if inBuffer > 0 {
				seg.Ring.ReadAdvance(int(inBuffer))
				usedBytes -= inBuffer
			}
		}
		if usedBytes > startThreshold {
			startNow = true
		}
	}

	c.videoReady = true
	return startNow
}

// GetDelay implements spec §4.F's get_delay(): zero unless the worker is
// running, a valid read segment exists, and there is no pending
// reconfiguration (filled == 0 means the read segment is the only one in
// flight).
func GetDelay(running bool, filledZero bool, adapterDelay int64, readSeg *segment.Segment) int64 {
	if !running || !filledZero || readSeg == nil {
		return 0
	}
	frameBytes := readSeg.HwChannels * 2
	if frameBytes == 0 || readSeg.HwRate == 0 {
		return adapterDelay
	}
	used := int64(readSeg.Ring.UsedBytes())
	return adapterDelay + used*90000/int64(readSeg.HwRate*frameBytes)
}

// GetClock implements spec §4.F's get_clock(): SentinelPTS when the read
// segment's PTS is unknown, else pts - delay.
func GetClock(readSeg *segment.Segment, delay int64) int64 {
	if readSeg == nil || readSeg.PTS == segment.SentinelPTS {
		return segment.SentinelPTS
	}
	return readSeg.PTS - delay
}
