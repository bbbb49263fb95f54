package driver

import (
	"strings"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

// Select resolves a device string (as passed to the façade's SetDevice) to
// a concrete Adapter. "" selects Noop; a leading "/" selects the DSP
// adapter bound to that character device path; anything else is treated
// as an ebiten/oto output and bound to ctx via a PCM adapter.
func Select(device string, ctx *audio.Context) Adapter {
	switch {
	case device == "":
		return NewNoop()
	case strings.HasPrefix(device, "/"):
		return NewDSP(device)
	default:
		return NewPCM(ctx)
	}
}
