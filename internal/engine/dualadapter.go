package engine

import (
	"github.com/kestrelav/avaudio/internal/driver"
	"github.com/kestrelav/avaudio/internal/segment"
)

// dualAdapter composes a PCM-path adapter and an AC3-pass-through-path
// adapter behind the single driver.Adapter surface the playback worker
// holds, per spec §4.D's "reopen endpoint for pcm vs pass-through": the
// worker never knows two endpoints exist, it just calls Setup/ThreadTick
// on whichever one the current segment's use_ac3 flag selects. Grounded
// on original_source/audio.c keeping AudioPCMDevice and AudioAC3Device as
// separate device strings while exposing one set of Audio* entry points.
type dualAdapter struct {
	pcm, ac3 driver.Adapter
	active   driver.Adapter
}

func newDualAdapter(pcm, ac3 driver.Adapter) *dualAdapter {
	return &dualAdapter{pcm: pcm, ac3: ac3, active: pcm}
}

func (d *dualAdapter) Init() error {
	if err := d.pcm.Init(); err != nil {
		return err
	}
	if d.ac3 != d.pcm {
		if err := d.ac3.Init(); err != nil {
			return err
		}
	}
	return nil
}

func (d *dualAdapter) Exit() {
	d.pcm.Exit()
	if d.ac3 != d.pcm {
		d.ac3.Exit()
	}
}

func (d *dualAdapter) Setup(rate, channels int, useAC3 bool) (driver.SetupResult, error) {
	target := d.pcm
	if useAC3 {
		target = d.ac3
	}
	res, err := target.Setup(rate, channels, useAC3)
	if err != nil {
		return res, err
	}
	d.active = target
	return res, nil
}

func (d *dualAdapter) Flush()          { d.active.Flush() }
func (d *dualAdapter) SetVolume(v int) { d.active.SetVolume(v) }
func (d *dualAdapter) GetDelay() int64 { return d.active.GetDelay() }
func (d *dualAdapter) Play()           { d.active.Play() }
func (d *dualAdapter) Pause()          { d.active.Pause() }

func (d *dualAdapter) ThreadTick(seg *segment.Segment, params driver.WriteParams, firstIteration bool) (driver.TickStatus, error) {
	return d.active.ThreadTick(seg, params, firstIteration)
}
