package engine

import (
	"time"

	"github.com/kestrelav/avaudio/internal/segment"
	"github.com/kestrelav/avaudio/internal/worker"
)

// flushPollInterval and flushPollTimeout match spec §5/§4.F's flush
// handshake: the producer polls at ~1ms and gives up after 48ms, nudging
// the worker's start condition if it went back to sleep mid-drain.
const (
	flushPollInterval = time.Millisecond
	flushPollTimeout  = 48 * time.Millisecond
)

func pollFlushDrain(ring *segment.RingOfRings, w *worker.Worker) error {
	deadline := time.Now().Add(flushPollTimeout)
	for {
		if ring.Filled() == 0 {
			return nil
		}
		if !w.IsRunning() {
			w.Start()
		}
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(flushPollInterval)
	}
}
