package analyzer

import (
	"sync"
	"sync/atomic"
)

const defaultRelease = 0.85

// Tap feeds a Meter from the audio cadence. Write only copies a downmix
// into a ring and never waits: if a reader holds the ring the block is
// skipped. Analysis runs on the caller of Levels.
type Tap struct {
	mu     sync.Mutex
	ring   []float32
	pos    int
	filled int
	rate   float64

	analyzeMu sync.Mutex
	meter     *Meter
	scratch   []float32
	held      Levels

	skipped atomic.Uint64
}

// NewTap creates a Tap holding one FFT window of history for m.
func NewTap(m *Meter) *Tap {
	return &Tap{
		meter:   m,
		ring:    make([]float32, m.Size()),
		scratch: make([]float32, m.Size()),
	}
}

// Write implements audio.Tap.
func (t *Tap) Write(block []float32, channels int, sampleRate float64) {
	if !t.mu.TryLock() {
		t.skipped.Add(1)
		return
	}
	defer t.mu.Unlock()

	if channels < 1 {
		channels = 1
	}
	t.rate = sampleRate
	inv := 1 / float32(channels)
	for i := 0; i+channels <= len(block); i += channels {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += block[i+c]
		}
		t.ring[t.pos] = sum * inv
		t.pos = (t.pos + 1) % len(t.ring)
		if t.filled < len(t.ring) {
			t.filled++
		}
	}
}

// Levels analyzes the most recent window and returns held meter levels.
func (t *Tap) Levels() Levels {
	t.analyzeMu.Lock()
	defer t.analyzeMu.Unlock()

	t.mu.Lock()
	n := t.filled
	start := (t.pos - n + len(t.ring)) % len(t.ring)
	for i := 0; i < n; i++ {
		t.scratch[i] = t.ring[(start+i)%len(t.ring)]
	}
	rate := t.rate
	t.mu.Unlock()

	t.meter.SetSampleRate(rate)
	t.held = Hold(t.held, t.meter.Analyze(t.scratch[:n]), defaultRelease)
	return t.held
}

// Skipped reports blocks dropped because a reader held the ring.
func (t *Tap) Skipped() uint64 { return t.skipped.Load() }
