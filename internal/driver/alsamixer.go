package driver

import (
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
)

// AlsaMixer binds libasound's simple-mixer API via purego (dlopen, no
// cgo), the way ebitengine/oto itself loads libasound on Linux, to set
// hardware playback volume on a named mixer control. It is an optional
// helper composed alongside an Adapter: PCM and DSP adapters accept
// software-only volume by default, and the façade wires an AlsaMixer in
// when the user asks for hardware volume control.
type AlsaMixer struct {
	mu      sync.Mutex
	handle  uintptr
	elem    uintptr
	control string

	snd_mixer_open          func(mixer *uintptr, mode int) int32
	snd_mixer_attach        func(mixer uintptr, name string) int32
	snd_mixer_selem_register func(mixer uintptr, options uintptr, classp uintptr) int32
	snd_mixer_load          func(mixer uintptr) int32
	snd_mixer_close         func(mixer uintptr) int32
	snd_mixer_first_elem    func(mixer uintptr) uintptr
	snd_mixer_elem_next     func(elem uintptr) uintptr
	snd_mixer_selem_get_name func(elem uintptr) string
	snd_mixer_selem_set_playback_volume_all func(elem uintptr, value int64) int32
	snd_mixer_selem_get_playback_volume_range func(elem uintptr, min, max *int64) int32
}

// NewAlsaMixer opens libasound.so.2 and binds the handful of
// snd_mixer_selem_* functions this adapter needs.
func NewAlsaMixer(card, control string) (*AlsaMixer, error) {
	lib, err := purego.Dlopen("libasound.so.2", purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("driver: dlopen libasound: %w", err)
	}

	m := &AlsaMixer{control: control}
	purego.RegisterLibFunc(&m.snd_mixer_open, lib, "snd_mixer_open")
	purego.RegisterLibFunc(&m.snd_mixer_attach, lib, "snd_mixer_attach")
	purego.RegisterLibFunc(&m.snd_mixer_selem_register, lib, "snd_mixer_selem_register")
	purego.RegisterLibFunc(&m.snd_mixer_load, lib, "snd_mixer_load")
	purego.RegisterLibFunc(&m.snd_mixer_close, lib, "snd_mixer_close")
	purego.RegisterLibFunc(&m.snd_mixer_first_elem, lib, "snd_mixer_first_elem")
	purego.RegisterLibFunc(&m.snd_mixer_elem_next, lib, "snd_mixer_elem_next")
	purego.RegisterLibFunc(&m.snd_mixer_selem_get_name, lib, "snd_mixer_selem_get_name")
	purego.RegisterLibFunc(&m.snd_mixer_selem_set_playback_volume_all, lib, "snd_mixer_selem_set_playback_volume_all")
	purego.RegisterLibFunc(&m.snd_mixer_selem_get_playback_volume_range, lib, "snd_mixer_selem_get_playback_volume_range")

	if rc := m.snd_mixer_open(&m.handle, 0); rc < 0 {
		return nil, fmt.Errorf("driver: snd_mixer_open failed: %d", rc)
	}
	if rc := m.snd_mixer_attach(m.handle, card); rc < 0 {
		m.snd_mixer_close(m.handle)
		return nil, fmt.Errorf("driver: snd_mixer_attach %s failed: %d", card, rc)
	}
	if rc := m.snd_mixer_selem_register(m.handle, 0, 0); rc < 0 {
		m.snd_mixer_close(m.handle)
		return nil, fmt.Errorf("driver: snd_mixer_selem_register failed: %d", rc)
	}
	if rc := m.snd_mixer_load(m.handle); rc < 0 {
		m.snd_mixer_close(m.handle)
		return nil, fmt.Errorf("driver: snd_mixer_load failed: %d", rc)
	}

	for e := m.snd_mixer_first_elem(m.handle); e != 0; e = m.snd_mixer_elem_next(e) {
		if m.snd_mixer_selem_get_name(e) == control {
			m.elem = e
			break
		}
	}
	if m.elem == 0 {
		m.snd_mixer_close(m.handle)
		return nil, fmt.Errorf("driver: mixer control %q not found on %s", control, card)
	}
	return m, nil
}

// SetVolume scales v (0..1000 per-mille) onto the control's native
// playback volume range and applies it.
func (m *AlsaMixer) SetVolume(v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.elem == 0 {
		return
	}
	if v < 0 {
		v = 0
	}
	if v > 1000 {
		v = 1000
	}
	var lo, hi int64
	m.snd_mixer_selem_get_playback_volume_range(m.elem, &lo, &hi)
	value := lo + (hi-lo)*int64(v)/1000
	m.snd_mixer_selem_set_playback_volume_all(m.elem, value)
}

// Close releases the mixer handle.
func (m *AlsaMixer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != 0 {
		m.snd_mixer_close(m.handle)
		m.handle = 0
		m.elem = 0
	}
}
