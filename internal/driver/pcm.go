package driver

import (
	"fmt"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/kestrelav/avaudio/internal/segment"
)

// bridgeCapacity is the size of the small FIFO between ThreadTick (our
// producer goroutine) and the oto pull callback driving audio.Player.Read
// (a different goroutine). Sized at roughly one low-latency period at
// 48kHz stereo 16-bit.
const bridgeCapacity = 8192

// PCM adapts an ebiten/v2/audio.Context + Player to the Adapter surface.
// ebiten/oto is a pull-based API (Player.Read is called from an internal
// goroutine) while the rest of this package is push-based (ThreadTick is
// called by the playback worker), so PCM bridges the two through a small
// mutex-protected FIFO, in the same spirit as the teacher's apuStream:
// Read() never blocks and fills any gap with silence rather than
// stalling the callback.
type PCM struct {
	ctx    *audio.Context
	player *audio.Player

	mu       sync.Mutex
	fifo     []byte
	started  bool
	rate     int
	channels int

	logf         func(format string, args ...any)
	brokenLogged bool
}

// NewPCM returns an adapter bound to an existing ebiten audio context
// (one per process, created once by the host application).
func NewPCM(ctx *audio.Context) *PCM {
	return &PCM{ctx: ctx}
}

// SetLogf installs the log sink used for the once-per-session
// DeviceBroken notice (spec §7 taxonomy item 4).
func (d *PCM) SetLogf(logf func(format string, args ...any)) { d.logf = logf }

func (d *PCM) Init() error {
	if d.ctx == nil {
		return fmt.Errorf("driver: pcm adapter requires a non-nil audio.Context")
	}
	return nil
}

func (d *PCM) Exit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		d.player.Close()
		d.player = nil
	}
}

// Setup opens an ebiten audio.Player for the requested format. ebiten's
// audio package is fixed-format: one sample rate per Context (set once at
// process start) and always 2-channel interleaved 16-bit PCM, so a rate
// other than the context's native rate cannot be honored at all (the
// engine performs no frequency-domain resampling, spec §1) and a channel
// count other than 2 is silently forced to stereo, reported via
// SetupResult.Forced.
func (d *PCM) Setup(rate, channels int, useAC3 bool) (SetupResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if native := d.ctx.SampleRate(); rate != native {
		return SetupResult{}, fmt.Errorf("driver: pcm adapter is fixed at %dHz, cannot open %dHz", native, rate)
	}

	if d.player != nil {
		d.player.Close()
		d.player = nil
	}
	actualChannels := 2
	d.rate, d.channels = rate, actualChannels
	d.fifo = d.fifo[:0]
	d.started = false

	p, err := d.ctx.NewPlayer(d)
	if err != nil {
		return SetupResult{}, fmt.Errorf("driver: pcm NewPlayer: %w", err)
	}
	p.SetBufferSize(20 * time.Millisecond)
	d.player = p
	return SetupResult{
		Rate:        rate,
		Channels:    actualChannels,
		Forced:      actualChannels != channels,
		PeriodBytes: bridgeCapacity / 4,
	}, nil
}

func (d *PCM) Flush() {
	d.mu.Lock()
	d.fifo = d.fifo[:0]
	d.mu.Unlock()
	if d.player != nil {
		d.player.Pause()
		_ = d.player.SetPosition(0)
	}
}

// SetVolume scales v (0..1000) to ebiten's 0.0..1.0 float volume.
func (d *PCM) SetVolume(v int) {
	if d.player == nil {
		return
	}
	if v < 0 {
		v = 0
	}
	if v > 1000 {
		v = 1000
	}
	d.player.SetVolume(float64(v) / 1000)
}

// GetDelay approximates queued frames from the bridge FIFO occupancy;
// ebiten's Player does not expose its internal oto buffer depth.
func (d *PCM) GetDelay() int64 {
	d.mu.Lock()
	n := len(d.fifo)
	rate, channels := d.rate, d.channels
	d.mu.Unlock()
	if rate == 0 || channels == 0 {
		return 0
	}
	frames := n / (channels * 2)
	return int64(frames) * 90000 / int64(rate)
}

func (d *PCM) Play() {
	if d.player != nil {
		d.player.Play()
	}
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
}

func (d *PCM) Pause() {
	if d.player != nil {
		d.player.Pause()
	}
}

func (d *PCM) ThreadTick(seg *segment.Segment, params WriteParams, firstIteration bool) (TickStatus, error) {
	return writeLoop(d, seg, params, firstIteration)
}

func (d *PCM) writable() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	free := bridgeCapacity - len(d.fifo)
	if free < 0 {
		return 0
	}
	return free
}

func (d *PCM) prepared() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.player != nil && !d.started
}

func (d *PCM) requestStart() {
	d.mu.Lock()
	if !d.brokenLogged && d.logf != nil {
		d.brokenLogged = true
		d.logf("driver: pcm bridge starved below writable floor, requesting start")
	}
	d.mu.Unlock()
	d.Play()
}

func (d *PCM) write(p []byte) (int, error, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	free := bridgeCapacity - len(d.fifo)
	if free <= 0 {
		return 0, fmt.Errorf("driver: pcm bridge full"), true
	}
	n := len(p)
	if n > free {
		n = free
	}
	d.fifo = append(d.fifo, p[:n]...)
	return n, nil, false
}

func (d *PCM) recover() error {
	return nil
}

// Read implements io.Reader for ebiten's oto pull callback, draining the
// bridge FIFO and padding any shortfall with silence so the callback never
// stalls, matching the teacher's apuStream.Read underrun behavior.
func (d *PCM) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	d.mu.Lock()
	n := copy(p, d.fifo)
	d.fifo = d.fifo[n:]
	d.mu.Unlock()
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}
