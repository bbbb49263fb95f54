// Package driver implements the output-sink capability surface: a uniform
// set of operations over one concrete kernel audio endpoint. Dynamic
// dispatch over a small, once-selected capability set is appropriate here,
// so Adapter is a plain interface with three concrete implementations
// (pcm, dsp, noop) rather than a generic driver-plugin system.
package driver

import (
	"errors"
	"time"

	"github.com/kestrelav/avaudio/internal/segment"
)

// TickStatus is the per-iteration result of Adapter.ThreadTick: error,
// underrun, or running.
type TickStatus int

const (
	TickError    TickStatus = -1
	TickUnderrun TickStatus = 0
	TickRunning  TickStatus = 1
)

// ErrFatal marks an unrecoverable sink error: the worker logs, sleeps one
// period, and returns to the start-condition wait.
var ErrFatal = errors.New("driver: fatal sink error")

// WriteParams carries the façade-level volume/filter configuration the
// generic write loop needs: if muted, or soft-volume is enabled and the
// segment isn't an AC3 pass-through, the amplifier is applied in place on
// the slice about to be written.
type WriteParams struct {
	Muted      bool
	SoftVolume bool
	Amplifier  int // per-mille, 1000 = unity
}

// SetupResult reports what the device actually accepted. This is the
// idiomatic-Go alternative to a C-style setup(&rate, &channels) out-param
// contract: return values instead of pointer mutation.
type SetupResult struct {
	Rate        int
	Channels    int
	Forced      bool // true if the device could not honor the request and adjusted rate/channels
	PeriodBytes int  // one period/fragment's worth of bytes; the engine's start threshold does not read it (it uses a fixed floor)
}

// Adapter is the uniform capability surface every concrete kernel sink
// binding exposes.
type Adapter interface {
	// Init opens the mixer and discovers capabilities.
	Init() error
	// Exit closes the mixer and any open endpoint.
	Exit()
	// Setup reopens the endpoint for the requested format (PCM or AC3
	// pass-through) and returns what was actually negotiated.
	Setup(rate, channels int, useAC3 bool) (SetupResult, error)
	// Flush drops or stops the sink, leaving it prepared for immediate
	// restart.
	Flush()
	// SetVolume scales v (0..1000) to the device's native range and
	// applies it. A no-op if hardware volume is disabled.
	SetVolume(v int)
	// GetDelay returns frames still queued in the device, in 90kHz ticks.
	GetDelay() int64
	// Play resumes playback, using a hardware pause/resume if the device
	// supports it, otherwise drop+prepare.
	Play()
	// Pause suspends playback cooperatively.
	Pause()
	// ThreadTick runs one iteration of the write loop: poll writable
	// space with a bounded timeout, drain as much as possible from seg's
	// ring, apply params, write, recover on short writes or recoverable
	// errors. firstIteration marks the first tick since the adapter was
	// last (re)configured, used for the broken-driver start kick.
	ThreadTick(seg *segment.Segment, params WriteParams, firstIteration bool) (TickStatus, error)
}

// sink is the minimal hardware-facing surface a concrete adapter must
// implement; writeLoop turns it into the full write loop so the four-step
// contract is implemented exactly once.
type sink interface {
	// writable returns currently available device buffer space in bytes.
	writable() int
	// prepared reports whether the device is sitting in the "prepared"
	// state (opened, not yet started) — used for the broken-driver start
	// kick.
	prepared() bool
	// requestStart asks the device to begin consuming queued data.
	requestStart()
	// write pushes p to the device, returning bytes actually written. A
	// non-nil err with recoverable=true indicates a short write or
	// recoverable underrun that the write loop should retry after
	// calling recover; recoverable=false is fatal.
	write(p []byte) (n int, err error, recoverable bool)
	// recover prepares/restarts the device after a recoverable error.
	recover() error
}

const minWritableBytes = 256

// writeLoop implements the generic four-step tick: check writable space,
// pull from the ring, apply volume, write and recover.
func writeLoop(s sink, seg *segment.Segment, params WriteParams, firstIteration bool) (TickStatus, error) {
	free := s.writable()
	if free < minWritableBytes {
		if firstIteration && s.prepared() {
			s.requestStart()
		}
		time.Sleep(5 * time.Millisecond)
		return TickRunning, nil
	}

	p, n := seg.Ring.GetReadPointer()
	if n == 0 {
		if firstIteration {
			return TickRunning, nil
		}
		return TickUnderrun, nil
	}

	if n > free {
		n = free
		p = p[:n]
	}

	if !seg.UseAC3 && (params.Muted || params.SoftVolume) {
		applyAmplifierInPlace(p, params)
	}

	for {
		written, err, recoverable := s.write(p)
		if written > 0 {
			seg.Ring.ReadAdvance(written)
		}
		if err == nil {
			return TickRunning, nil
		}
		if !recoverable {
			return TickError, ErrFatal
		}
		if rerr := s.recover(); rerr != nil {
			return TickError, ErrFatal
		}
		p = p[written:]
		if len(p) == 0 {
			return TickRunning, nil
		}
	}
}

// applyAmplifierInPlace reinterprets p as signed 16-bit samples and scales
// them. It is a thin byte<->int16 bridge over internal/filters.Amplify so
// the write loop doesn't duplicate clamping logic.
func applyAmplifierInPlace(p []byte, params WriteParams) {
	samples := bytesToInt16(p)
	amplifyInt16(samples, params.Amplifier, params.Muted)
	int16ToBytes(samples, p)
}
