// Package worker implements the single-goroutine playback worker: it
// blocks on the start condition, drains the current-read segment through
// the selected driver adapter, coalesces flush markers, and advances
// across segments on underrun, reconfiguring the adapter and resetting
// filter state on format changes. Grounded on the teacher's
// internal/ui/audio.go pull loop and internal/ui/ebitenapp.go's
// single-goroutine update pattern, generalized from "pull PCM for ebiten"
// to "drive any capability-surface adapter".
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/kestrelav/avaudio/internal/driver"
	"github.com/kestrelav/avaudio/internal/filters"
	"github.com/kestrelav/avaudio/internal/segment"
)

// recoverSleep is the fixed pause after a tick error or a failed
// reconfiguration, and between polls while paused, matching the ~5ms
// figure the write loop uses after a broken-driver start kick.
const recoverSleep = 5 * time.Millisecond

// Hooks are the façade-owned collaborators the worker needs but does not
// own: the currently configured write parameters, the start threshold in
// bytes, and the per-segment volume/stereo-descent reapplication that
// happens on reconfiguration.
type Hooks struct {
	WriteParams    func() driver.WriteParams
	StartThreshold func() int64
	ApplyVolume    func(seg *segment.Segment)
	Logf           func(format string, args ...any)
	// Paused reports the façade's cooperative pause flag (Play()/Pause()
	// toggle it; the worker observes it at the top of every tick rather
	// than being torn down). Nil means never paused.
	Paused func() bool
}

// Worker is the single playback goroutine described by spec §4.E.
type Worker struct {
	ring       *segment.RingOfRings
	adapter    driver.Adapter
	normalizer *filters.Normalizer
	compressor *filters.Compressor
	hooks      Hooks

	mu      sync.Mutex
	cond    *sync.Cond
	running bool

	firstIteration bool
}

// New builds a worker bound to ring and adapter. normalizer/compressor are
// shared with the façade's enqueue pipeline so the worker's segment-switch
// Reset calls take effect on the very state the pipeline filters through.
func New(ring *segment.RingOfRings, adapter driver.Adapter, normalizer *filters.Normalizer, compressor *filters.Compressor, hooks Hooks) *Worker {
	w := &Worker{ring: ring, adapter: adapter, normalizer: normalizer, compressor: compressor, hooks: hooks}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Start marks the worker as runnable and wakes the start condition. Called
// by the façade on enqueue/flush per the start-gating rules in §4.F, or
// directly by Play().
func (w *Worker) Start() {
	w.mu.Lock()
	w.running = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

// Stop cooperatively parks the worker without tearing down the goroutine.
// The façade's Pause() does not call it; pausing goes through Hooks.Paused.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// IsRunning reports whether the worker believes itself to be running.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Run is the worker's body; suitable for golang.org/x/sync/errgroup.Go. It
// returns nil on context cancellation, the only form of exit.
func (w *Worker) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
		case <-done:
		}
	}()

	for {
		w.mu.Lock()
		for !w.running && ctx.Err() == nil {
			w.cond.Wait()
		}
		w.mu.Unlock()
		if ctx.Err() != nil {
			return nil
		}

		w.firstIteration = true
		w.runUntilParked(ctx)

		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		if ctx.Err() != nil {
			return nil
		}
	}
}

// runUntilParked executes the inner loop of §4.E's pseudocode until the
// worker has nothing left to do (or a fatal error occurs) and should go
// back to the start-condition wait.
func (w *Worker) runUntilParked(ctx context.Context) {
	pausedLast := false
	for {
		if ctx.Err() != nil {
			return
		}

		if w.hooks.Paused != nil && w.hooks.Paused() {
			if !pausedLast {
				w.adapter.Pause()
				pausedLast = true
			}
			time.Sleep(recoverSleep)
			continue
		}
		if pausedLast {
			w.adapter.Play()
			pausedLast = false
			w.firstIteration = true
		}

		if w.flushScan() {
			w.adapter.Flush()
			parked, err := w.nextRing()
			if err != nil {
				w.logf("worker: fatal error reconfiguring after flush: %v", err)
				time.Sleep(recoverSleep)
				return
			}
			if parked {
				return
			}
		}

		cur := w.ring.CurrentRead()
		status, err := w.adapter.ThreadTick(cur, w.hooks.WriteParams(), w.firstIteration)
		w.firstIteration = false

		if status == driver.TickError {
			w.logf("worker: adapter tick error: %v", err)
			time.Sleep(recoverSleep)
			return
		}

		if status == driver.TickUnderrun {
			if w.ring.Filled() == 0 {
				return
			}
			old := cur
			w.ring.AdvanceRead()
			next := w.ring.CurrentRead()
			if formatChanged(old, next) {
				parked, err := w.nextRing()
				if err != nil {
					w.logf("worker: fatal error reconfiguring for new segment: %v", err)
					time.Sleep(recoverSleep)
					return
				}
				if parked {
					return
				}
			} else {
				w.compressor.Reset()
				w.normalizer.Reset()
			}
		}
	}
}

// flushScan advances the read index over every queued segment carrying
// flush_buffers, coalescing redundant flushes into one adapter.Flush call
// (spec §4.E step 1, and the "double flush is one flush" round-trip
// property).
func (w *Worker) flushScan() bool {
	flushed := false
	f := w.ring.Filled()
	r := w.ring.ReadIndex()
	for f > 0 {
		r = (r + 1) % segment.Depth
		s := w.ring.SegmentAt(r)
		if s.FlushBuffers {
			s.FlushBuffers = false
			w.ring.SetReadIndex(r)
			// f counts this segment itself; Filled() must land in the same
			// "segments strictly after CurrentRead" convention AdvanceRead
			// maintains, or the next underrun check mistakes "just arrived
			// at the last queued segment" for "more segments queued" and
			// wrongly advances into an unconfigured neighbor.
			w.ring.SetFilled(f - 1)
			flushed = true
		}
		f--
	}
	return flushed
}

// nextRing reopens/reconfigures the sink for the current-read segment's
// format, reapplies volume, resets filter state, and reports whether the
// worker should park (the new segment holds less than one start
// threshold).
func (w *Worker) nextRing() (parked bool, err error) {
	seg := w.ring.CurrentRead()
	res, err := w.adapter.Setup(seg.HwRate, seg.HwChannels, seg.UseAC3)
	if err != nil {
		return false, err
	}
	if res.Forced {
		seg.HwRate = res.Rate
		seg.HwChannels = res.Channels
	}
	if w.hooks.ApplyVolume != nil {
		w.hooks.ApplyVolume(seg)
	}
	w.normalizer.Reset()
	w.compressor.Reset()
	w.firstIteration = true

	threshold := int64(0)
	if w.hooks.StartThreshold != nil {
		threshold = w.hooks.StartThreshold()
	}
	if int64(seg.Ring.UsedBytes()) < threshold {
		return true, nil
	}
	return false, nil
}

func (w *Worker) logf(format string, args ...any) {
	if w.hooks.Logf != nil {
		w.hooks.Logf(format, args...)
	}
}

func formatChanged(a, b *segment.Segment) bool {
	return a.UseAC3 != b.UseAC3 || a.HwRate != b.HwRate || a.HwChannels != b.HwChannels
}
