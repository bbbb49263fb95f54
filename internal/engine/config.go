package engine

import "github.com/hajimehoshi/ebiten/v2/audio"

// Config contains the process-wide settings of the audio output engine:
// device selection, filter toggles, and gain/timing defaults. It mirrors
// the teacher's Config/Defaults() shape (internal/ui/config.go,
// internal/emu/config.go).
type Config struct {
	// AudioCtx is the ebiten audio context the PCM adapter plays through.
	// Required only when Device or DeviceAC3 selects the PCM adapter (a
	// non-empty string not starting with "/"); Noop and DSP ignore it.
	AudioCtx *audio.Context

	// Device selects the driver adapter for PCM output: "" for Noop, a
	// leading "/" (e.g. "/dev/dsp") for the raw OSS adapter, anything else
	// for the ebiten/oto-backed PCM adapter. See internal/driver.Select.
	Device string
	// DeviceAC3 selects the adapter opened when a segment's UseAC3 is set.
	// Defaults to Device when empty.
	DeviceAC3 string
	// MixerCard and MixerChannel name the ALSA simple-mixer control used
	// for hardware volume when HardwareVolume is true.
	MixerCard    string
	MixerChannel string
	// HardwareVolume routes SetVolume through an AlsaMixer binding instead
	// of the adapter's own software scaling.
	HardwareVolume bool

	// AudioBufferTimeMS is the target buffering delay in milliseconds used
	// by the start-threshold computation (spec §4.F). Default 336, per
	// spec §6.3.
	AudioBufferTimeMS int
	// VideoAudioDelay is the externally configured fixed offset (90kHz
	// ticks) folded into both the start threshold and the video_ready skip
	// computation.
	VideoAudioDelay int64

	SoftVolume     bool
	Normalize      bool
	MaxNormalize   int
	Compress       bool
	MaxCompression int
	Muted          bool
	Volume         int // 0..1000, 1000 = unity
	StereoDescent  int // per-mille attenuation applied only to 2ch non-AC3 output

	// Logf receives the engine's absorbed-error and diagnostic log lines.
	// Defaults to log.Printf when nil.
	Logf func(format string, args ...any)
}

// Defaults fills unset fields with the spec's documented defaults.
func (c *Config) Defaults() {
	if c.AudioBufferTimeMS <= 0 {
		c.AudioBufferTimeMS = 336
	}
	if c.MaxNormalize <= 0 {
		c.MaxNormalize = 10000
	}
	if c.MaxCompression <= 0 {
		c.MaxCompression = 10000
	}
	if c.Volume <= 0 {
		c.Volume = 1000
	}
	if c.DeviceAC3 == "" {
		c.DeviceAC3 = c.Device
	}
	if c.MixerChannel == "" {
		c.MixerChannel = "PCM"
	}
	if c.MixerCard == "" {
		c.MixerCard = "default"
	}
}
