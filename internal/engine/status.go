package engine

import "github.com/kestrelav/avaudio/internal/capmatrix"

// Status is a point-in-time diagnostic snapshot, returned for logging and
// introspection only; nothing in the engine reads it back. Mirrors
// original_source/audio.c's AudioChannelsInHw flat bitmap, kept alongside
// the rate x channel matrix per SPEC_FULL.md section C.3.
type Status struct {
	Running           bool
	WriteUsedBytes    int
	WriteFreeBytes    int
	ReadFilled        int
	SupportedChannels [capmatrix.MaxChannels + 1]bool
}

// Status reports a diagnostic snapshot of the engine's current state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	w := e.ring.CurrentWrite()
	return Status{
		Running:           e.worker.IsRunning(),
		WriteUsedBytes:    w.Ring.UsedBytes(),
		WriteFreeBytes:    w.Ring.FreeBytes(),
		ReadFilled:        e.ring.Filled(),
		SupportedChannels: e.matrix.SupportedChannels(),
	}
}
