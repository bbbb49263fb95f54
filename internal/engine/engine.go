// Package engine implements the public façade (spec §6.1): the thread-safe
// operations the decoder calls to push samples, gate start on video
// readiness, flush, and read back the audio clock. It owns the process-wide
// state (§3 "Process-wide state") and wires together capmatrix, segment,
// remix, filters, driver, avsync and worker into the single entry point
// described by spec §2's component table row G. Grounded on the teacher's
// internal/emu.Machine: a single owning struct built by New(cfg), with
// explicit Init/Exit lifecycle methods rather than lifecycle-in-constructor.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelav/avaudio/internal/avsync"
	"github.com/kestrelav/avaudio/internal/capmatrix"
	"github.com/kestrelav/avaudio/internal/driver"
	"github.com/kestrelav/avaudio/internal/filters"
	"github.com/kestrelav/avaudio/internal/remix"
	"github.com/kestrelav/avaudio/internal/segment"
	"github.com/kestrelav/avaudio/internal/worker"
)

// Engine is the process-wide audio output engine. There is ordinarily one
// instance per process (spec §9: "global mutable state is real and
// unavoidable for a single process-wide audio sink"), encapsulated here
// rather than reached into from package-level globals.
type Engine struct {
	cfg Config

	// mu serializes producer-side façade calls against each other (it is
	// NOT the spec's start-condition mutex, which lives inside
	// internal/worker; this one protects Engine's own fields and the
	// ring-of-rings' producer-owned write index/segment fields).
	mu sync.Mutex

	matrix *capmatrix.Matrix
	ring   *segment.RingOfRings
	sync   *avsync.Controller

	normalizer *filters.Normalizer
	compressor *filters.Compressor

	adapter *dualAdapter
	worker  *worker.Worker
	mixer   *driver.AlsaMixer // non-nil only when cfg.HardwareVolume is set and the mixer opened successfully

	group  *errgroup.Group
	cancel context.CancelFunc

	startThreshold int64 // recomputed on every Setup/FlushBuffers, read by worker hooks
	paused         bool
}

// New allocates an Engine from cfg without touching any hardware. Call
// Init to allocate the ring-of-rings, probe the channel matrix, and start
// the playback worker.
func New(cfg Config) *Engine {
	cfg.Defaults()
	return &Engine{
		cfg:        cfg,
		sync:       avsync.New(),
		normalizer: filters.NewNormalizer(cfg.MaxNormalize),
		compressor: filters.NewCompressor(cfg.MaxCompression),
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.cfg.Logf != nil {
		e.cfg.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Init implements spec §6.1's init(): allocates the ring-of-rings,
// discovers the channel matrix by probing the selected adapter at 44.1kHz
// and 48kHz for channel counts 1..8, initialises filter state (already
// done in New), and starts the worker goroutine.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pcm := driver.Select(e.cfg.Device, e.cfg.AudioCtx)
	ac3 := pcm
	if e.cfg.DeviceAC3 != e.cfg.Device {
		ac3 = driver.Select(e.cfg.DeviceAC3, e.cfg.AudioCtx)
	}
	for _, a := range []driver.Adapter{pcm, ac3} {
		if ls, ok := a.(interface {
			SetLogf(func(format string, args ...any))
		}); ok {
			ls.SetLogf(e.logf)
		}
	}
	e.adapter = newDualAdapter(pcm, ac3)
	if err := e.adapter.Init(); err != nil {
		return fmt.Errorf("engine: adapter init: %w", err)
	}

	e.matrix = capmatrix.New()
	e.matrix.Probe(func(rate, channels int) int {
		res, err := e.adapter.Setup(rate, channels, false)
		if err != nil {
			return 0
		}
		return res.Channels
	})

	if e.cfg.HardwareVolume {
		mixer, err := driver.NewAlsaMixer(e.cfg.MixerCard, e.cfg.MixerChannel)
		if err != nil {
			e.logf("engine: hardware volume unavailable, falling back to software volume: %v", err)
		} else {
			e.mixer = mixer
		}
	}

	e.ring = segment.New()

	hooks := worker.Hooks{
		WriteParams:    e.writeParams,
		StartThreshold: func() int64 { return e.startThreshold },
		ApplyVolume:    e.applyVolumeForSegment,
		Logf:           e.logf,
		Paused:         func() bool { e.mu.Lock(); defer e.mu.Unlock(); return e.paused },
	}
	e.worker = worker.New(e.ring, e.adapter, e.normalizer, e.compressor, hooks)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	e.group = g
	g.Go(func() error { return e.worker.Run(gctx) })

	return nil
}

// Exit implements spec §6.1's exit(): cancels and joins the worker,
// closes the adapter, and frees the ring-of-rings.
func (e *Engine) Exit() error {
	e.mu.Lock()
	cancel := e.cancel
	g := e.group
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if g != nil {
		err = g.Wait()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mixer != nil {
		e.mixer.Close()
		e.mixer = nil
	}
	if e.adapter != nil {
		e.adapter.Exit()
	}
	if e.ring != nil {
		e.ring.Exit()
	}
	return err
}

// Setup implements spec §6.1's setup(): allocates a new segment for
// (rate, channels, useAC3). forced reports whether the resolved hardware
// channel count differs from the request (the channel-matrix analogue of
// "the device forced a parameter change").
func (e *Engine) Setup(rate, channels int, useAC3 bool) (forced bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seg, err := e.ring.Add(rate, channels, useAC3, e.matrix)
	if err != nil {
		return false, err
	}
	e.startThreshold = e.computeStartThresholdLocked(seg)
	return seg.HwChannels != channels, nil
}

// computeStartThresholdLocked recomputes the start threshold for a newly
// allocated segment (spec §4.F). The floor is a fixed 4096 bytes; the
// per-device period size that the worker negotiates in nextRing
// (internal/worker, SetupResult.PeriodBytes) is not fed back into the
// threshold. StartThreshold only applies the floor when it exceeds the
// buffer-time term.
func (e *Engine) computeStartThresholdLocked(seg *segment.Segment) int64 {
	const periodFloorBytes = 4096
	return avsync.StartThreshold(periodFloorBytes, seg.HwRate, seg.HwChannels, e.cfg.AudioBufferTimeMS, e.cfg.VideoAudioDelay)
}

// Enqueue implements spec §6.1's enqueue(): remix, filter, write into the
// current segment, update its PTS, and evaluate the start-gating rule.
// AC3 pass-through segments skip remix/filters entirely (spec §4.B: "the
// engine must not filter or remix" pass-through bytes).
func (e *Engine) Enqueue(samples []byte) (written int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seg := e.ring.CurrentWrite()
	if seg == nil {
		return 0, fmt.Errorf("engine: enqueue before setup")
	}
	if seg.PacketSize == 0 {
		seg.PacketSize = len(samples)
	}

	var out []byte
	if seg.UseAC3 {
		out = samples
	} else {
		in := bytesToInt16(samples)
		mixed := remix.Remix(e.logf, in, seg.InChannels, seg.HwChannels)
		if e.cfg.Normalize {
			e.normalizer.Process(mixed)
		}
		if e.cfg.Compress {
			e.compressor.Process(mixed)
		}
		out = int16ToBytes(mixed)
	}

	if drop := e.sync.ConsumeSkip(len(out)); drop > 0 {
		out = out[drop:]
	}

	n := seg.Ring.Write(out)
	if n < len(out) {
		e.logf("engine: dropped %d bytes, write segment ring is full", len(out)-n)
	}
	seg.AdvancePTS(n)

	used := int64(seg.Ring.UsedBytes())
	if e.sync.ShouldStart(e.worker.IsRunning(), used, e.startThreshold) {
		e.worker.Start()
	}

	return n, nil
}

// VideoReady implements spec §6.1/§4.F's video_ready(pts).
func (e *Engine) VideoReady(videoPTS int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	seg := e.ring.CurrentWrite()
	if seg == nil {
		return
	}
	if e.sync.VideoReady(videoPTS, seg, e.worker.IsRunning(), e.cfg.AudioBufferTimeMS, e.cfg.VideoAudioDelay, e.startThreshold) {
		e.worker.Start()
	}
}

// FreeBytes implements spec §6.1's free_bytes(): the write segment's free
// space.
func (e *Engine) FreeBytes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ring.CurrentWrite().Ring.FreeBytes()
}

// UsedBytes implements spec §6.1's used_bytes(): the write segment's
// buffered bytes.
func (e *Engine) UsedBytes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ring.CurrentWrite().Ring.UsedBytes()
}

// SetClock implements spec §6.1's set_clock(): overwrite the current write
// segment's PTS.
func (e *Engine) SetClock(pts int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ring.CurrentWrite().PTS = pts
}

// GetClock implements spec §4.F's get_clock().
func (e *Engine) GetClock() int64 {
	readSeg := e.ring.CurrentRead()
	return avsync.GetClock(readSeg, e.GetDelay())
}

// GetDelay implements spec §4.F's get_delay(). Deliberately lock-free: it
// reads worker-owned fields of the current read segment as a best-effort
// status snapshot, matching the original's unsynchronized AudioGetDelay
// and spec §4.C's "unchecked accessor" note on CurrentRead.
func (e *Engine) GetDelay() int64 {
	readSeg := e.ring.CurrentRead()
	filledZero := e.ring.Filled() == 0
	return avsync.GetDelay(e.worker.IsRunning(), filledZero, e.adapter.GetDelay(), readSeg)
}

// FlushBuffers implements spec §6.1/§4.F's flush_buffers(): allocates the
// next segment inheriting the current format, marks it (reset() already
// does, for every Add), resets video_ready/pending_skip, and polls up to
// 48ms for the worker to drain it.
func (e *Engine) FlushBuffers() error {
	e.mu.Lock()
	cur := e.ring.CurrentWrite()
	rate, channels, useAC3 := cur.InRate, cur.InChannels, cur.UseAC3
	seg, err := e.ring.Add(rate, channels, useAC3, e.matrix)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.startThreshold = e.computeStartThresholdLocked(seg)
	e.sync.Reset()
	e.mu.Unlock()

	return pollFlushDrain(e.ring, e.worker)
}

// Play implements spec §6.1's play(): toggles the cooperative pause flag
// and wakes the worker.
func (e *Engine) Play() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.worker.Start()
}

// Pause implements spec §6.1's pause(): the worker observes the flag
// cooperatively at the top of every tick (internal/worker.Hooks.Paused).
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

// SetVolume implements spec §6.1's set_volume(): 0..1000, applying a
// stereo descent when the active read segment is 2-channel non-AC3.
func (e *Engine) SetVolume(v int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1000 {
		v = 1000
	}
	e.cfg.Volume = v
	e.applyVolumeForSegmentLocked(e.ring.CurrentRead())
}

func (e *Engine) applyVolumeForSegment(seg *segment.Segment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyVolumeForSegmentLocked(seg)
}

// applyVolumeForSegmentLocked applies the configured volume (minus any
// stereo descent) for seg. When hardware volume is enabled and the ALSA
// mixer opened successfully, the attenuation goes through the mixer
// control instead of the adapter's own software scaling — spec §6.1's
// set_volume is a no-op on the adapter's software path when hardware
// volume is in effect.
func (e *Engine) applyVolumeForSegmentLocked(seg *segment.Segment) {
	v := e.cfg.Volume
	if seg != nil && seg.HwChannels == 2 && !seg.UseAC3 {
		v -= e.cfg.StereoDescent
	}
	if v < 0 {
		v = 0
	}
	if v > 1000 {
		v = 1000
	}
	if e.cfg.HardwareVolume && e.mixer != nil {
		e.mixer.SetVolume(v)
		return
	}
	e.adapter.SetVolume(v)
}

// SetSoftVolume implements spec §6.1's set_softvol.
func (e *Engine) SetSoftVolume(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.SoftVolume = on
}

// SetMute toggles the mute flag referenced by spec §4.A's amplifier.
func (e *Engine) SetMute(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Muted = muted
}

// SetNormalize implements spec §6.1's set_normalize(onoff, max).
func (e *Engine) SetNormalize(on bool, max int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Normalize = on
	if max > 0 {
		e.cfg.MaxNormalize = max
		e.normalizer.SetMax(max)
	}
}

// SetCompression implements spec §6.1's set_compression(onoff, max).
func (e *Engine) SetCompression(on bool, max int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Compress = on
	if max > 0 {
		e.cfg.MaxCompression = max
		e.compressor.SetMax(max)
	}
}

// SetStereoDescent implements spec §6.1's set_stereo_descent(delta).
func (e *Engine) SetStereoDescent(delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.StereoDescent = delta
}

// SetBufferTime implements spec §6.1's set_buffer_time(ms).
func (e *Engine) SetBufferTime(ms int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.AudioBufferTimeMS = ms
}

// SetDevice implements spec §6.1's set_device(str). Taking effect requires
// a subsequent Init (device selection happens once, at Init, matching the
// spec's "mixer element handle ... mutated exclusively by init/exit/setup,
// called from the producer thread while the worker is parked").
func (e *Engine) SetDevice(device string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Device = device
}

// SetDeviceAC3 implements spec §6.1's set_device_ac3(str).
func (e *Engine) SetDeviceAC3(device string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.DeviceAC3 = device
}

// SetChannel implements spec §6.1's set_channel(str): the ALSA mixer
// control name used for hardware volume.
func (e *Engine) SetChannel(channel string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.MixerChannel = channel
}

// writeParams builds the driver.WriteParams for the current tick from the
// façade's live configuration. soft-volume amplification at write time is
// deliberately distinct from the enqueue-time normalizer/compressor: the
// amplifier here gives SetVolume/SetMute instant effect on already-
// buffered-but-not-yet-played audio, while normalize/compress run once per
// sample at enqueue (spec §4.A's design note on favoring continuity).
func (e *Engine) writeParams() driver.WriteParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	return driver.WriteParams{
		Muted:      e.cfg.Muted,
		SoftVolume: e.cfg.SoftVolume,
		Amplifier:  e.cfg.Volume,
	}
}
