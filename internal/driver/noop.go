package driver

import "github.com/kestrelav/avaudio/internal/segment"

// Noop is always available; it accepts any format and reports zero
// delay, draining segments as fast as the worker offers them. It is the
// adapter used when no kernel audio device can be opened, and in tests.
type Noop struct{}

// NewNoop returns a ready-to-use Noop adapter.
func NewNoop() *Noop { return &Noop{} }

func (n *Noop) Init() error { return nil }
func (n *Noop) Exit()       {}

func (n *Noop) Setup(rate, channels int, useAC3 bool) (SetupResult, error) {
	return SetupResult{Rate: rate, Channels: channels, PeriodBytes: 4096}, nil
}

func (n *Noop) Flush()          {}
func (n *Noop) SetVolume(v int) {}
func (n *Noop) GetDelay() int64 { return 0 }
func (n *Noop) Play()           {}
func (n *Noop) Pause()          {}

func (n *Noop) ThreadTick(seg *segment.Segment, params WriteParams, firstIteration bool) (TickStatus, error) {
	p, avail := seg.Ring.GetReadPointer()
	if avail == 0 {
		return TickUnderrun, nil
	}
	if !seg.UseAC3 && (params.Muted || params.SoftVolume) {
		applyAmplifierInPlace(p, params)
	}
	seg.Ring.ReadAdvance(avail)
	seg.AdvancePTS(avail)
	return TickRunning, nil
}
