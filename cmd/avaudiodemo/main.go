// Command avaudiodemo drives the audio output engine standalone, without a
// decoder or video pipeline attached: it synthesizes a sine tone, feeds it
// through Setup/Enqueue/VideoReady/FlushBuffers like a real producer would,
// and, with -trace, logs a status line after every Enqueue call, until the
// requested duration has been enqueued or a timeout elapses. Grounded on cmd/cpurunner's flag-driven headless
// runner shape (flag.*, log.Fatal on bad input, a -timeout wall clock, a
// -trace toggle for verbose per-tick output).
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/kestrelav/avaudio/internal/engine"
	"github.com/kestrelav/avaudio/internal/segment"
)

func main() {
	device := flag.String("device", "", `output device: "" for silent/noop, a leading "/" (e.g. "/dev/dsp") for raw OSS, anything else opens an ebiten/oto PCM sink`)
	deviceAC3 := flag.String("device-ac3", "", "device string for AC3 pass-through segments; defaults to -device")
	rate := flag.Int("rate", 48000, "sample rate in Hz (44100 or 48000)")
	channels := flag.Int("channels", 2, "input channel count (1-8)")
	freq := flag.Float64("freq", 440, "sine tone frequency in Hz")
	seconds := flag.Float64("seconds", 5, "seconds of tone to enqueue")
	chunkMS := flag.Int("chunk-ms", 20, "size of each Enqueue call, in milliseconds")
	bufferMS := flag.Int("buffer-ms", 0, "target buffering delay in ms; 0 uses the engine default")
	volume := flag.Int("volume", 1000, "playback volume, 1..1000; 0 selects the engine default of 1000")
	stereoDescent := flag.Int("stereo-descent", 0, "per-mille volume attenuation applied only to 2ch non-AC3 output")
	normalize := flag.Bool("normalize", false, "enable the running-average normalizer")
	compress := flag.Bool("compress", false, "enable the dynamic range compressor")
	mute := flag.Bool("mute", false, "start muted")
	videoReadyAt := flag.Duration("video-ready-at", 0, "delay before signaling video_ready; 0 signals immediately")
	flushAt := flag.Duration("flush-at", 0, "if set, call flush_buffers once after this delay, dropping whatever is still queued")
	timeout := flag.Duration("timeout", 30*time.Second, "wall-clock timeout; 0 disables")
	trace := flag.Bool("trace", false, "log a status line after every Enqueue call")
	flag.Parse()

	if *rate != 44100 && *rate != 48000 {
		log.Fatalf("-rate must be 44100 or 48000, got %d", *rate)
	}
	if *channels < 1 || *channels > 8 {
		log.Fatalf("-channels must be 1-8, got %d", *channels)
	}

	var ctx *audio.Context
	if needsAudioContext(*device) {
		ctx = audio.NewContext(*rate)
	}

	cfg := engine.Config{
		AudioCtx:          ctx,
		Device:            *device,
		DeviceAC3:         *deviceAC3,
		AudioBufferTimeMS: *bufferMS,
		Volume:            *volume,
		StereoDescent:     *stereoDescent,
		Normalize:         *normalize,
		Compress:          *compress,
		Muted:             *mute,
		Logf:              log.Printf,
	}

	e := engine.New(cfg)
	if err := e.Init(); err != nil {
		log.Fatalf("engine: init: %v", err)
	}
	defer e.Exit()

	if _, err := e.Setup(*rate, *channels, false); err != nil {
		log.Fatalf("engine: setup: %v", err)
	}

	chunkSamples := *rate * (*chunkMS) / 1000
	chunk := make([]int16, chunkSamples*(*channels))
	totalChunks := int(*seconds * 1000 / float64(*chunkMS))

	var deadline time.Time
	if *timeout > 0 {
		deadline = time.Now().Add(*timeout)
	}
	start := time.Now()
	videoReadySent := *videoReadyAt <= 0
	flushSent := false
	if videoReadySent {
		e.VideoReady(0)
	}

	phase := 0.0
	step := 2 * math.Pi * (*freq) / float64(*rate)
	for i := 0; i < totalChunks; i++ {
		for f := 0; f < chunkSamples; f++ {
			s := int16(math.Sin(phase) * 0.2 * math.MaxInt16)
			phase += step
			for c := 0; c < *channels; c++ {
				chunk[f*(*channels)+c] = s
			}
		}

		n, err := e.Enqueue(int16SliceToBytes(chunk))
		if err != nil {
			log.Fatalf("engine: enqueue: %v", err)
		}

		elapsed := time.Since(start)
		if !videoReadySent && elapsed >= *videoReadyAt {
			e.VideoReady(0)
			videoReadySent = true
		}
		if *flushAt > 0 && !flushSent && elapsed >= *flushAt {
			if err := e.FlushBuffers(); err != nil {
				log.Printf("engine: flush_buffers: %v", err)
			}
			flushSent = true
		}

		if *trace {
			st := e.Status()
			log.Printf("chunk=%d wrote=%d running=%t write_used=%d read_filled=%d clock=%d delay=%d",
				i, n, st.Running, st.WriteUsedBytes, st.ReadFilled, e.GetClock(), e.GetDelay())
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			fmt.Printf("timeout after %s\n", time.Since(start).Truncate(time.Millisecond))
			os.Exit(2)
		}
		time.Sleep(time.Duration(*chunkMS) * time.Millisecond)
	}

	fmt.Printf("done: enqueued %.2fs of tone, clock=%d sentinel=%t\n",
		*seconds, e.GetClock(), e.GetClock() == segment.SentinelPTS)
}

// needsAudioContext reports whether device resolves to the ebiten/oto PCM
// adapter (internal/driver.Select's default branch), the only one that
// requires a live audio.Context.
func needsAudioContext(device string) bool {
	if device == "" {
		return false
	}
	return !strings.HasPrefix(device, "/")
}

func int16SliceToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}
