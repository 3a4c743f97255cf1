package audio

import (
	"sync"
	"sync/atomic"

	"github.com/guidoenr/spectrefx/internal/core"
	"github.com/guidoenr/spectrefx/internal/params"
)

// Tap observes processed blocks. Write is called on the audio cadence and
// must return without blocking; the block is only valid during the call.
type Tap interface {
	Write(block []float32, channels int, sampleRate float64)
}

// Stats counts pipeline activity.
type Stats struct {
	Blocks    uint64 `json:"blocks"`
	Underruns uint64 `json:"underruns"`
}

// Pipeline pulls raw samples from the emulation core and runs them through
// a Processor with the sound configuration in effect for each block.
type Pipeline struct {
	source core.AudioSource
	store  *params.Store
	proc   *Processor

	tapMu sync.Mutex
	taps  atomic.Pointer[[]Tap]

	blocks    atomic.Uint64
	underruns atomic.Uint64
}

// NewPipeline creates a pipeline for source.
func NewPipeline(source core.AudioSource, store *params.Store) *Pipeline {
	return &Pipeline{
		source: source,
		store:  store,
		proc:   NewProcessor(source.Channels(), source.SampleRate()),
	}
}

// Channels returns the interleave width of the stream.
func (p *Pipeline) Channels() int { return p.proc.Channels() }

// SampleRate returns the stream rate.
func (p *Pipeline) SampleRate() float64 { return p.source.SampleRate() }

// AddTap registers t. Registration takes a lock; Fill only loads the tap
// list atomically.
func (p *Pipeline) AddTap(t Tap) {
	p.tapMu.Lock()
	defer p.tapMu.Unlock()
	var next []Tap
	if cur := p.taps.Load(); cur != nil {
		next = append(next, *cur...)
	}
	next = append(next, t)
	p.taps.Store(&next)
}

// Fill produces one processed block into out. Missing source samples are
// replaced by silence and counted as an underrun.
func (p *Pipeline) Fill(out []float32) {
	n := p.source.ReadSamples(out)
	if n < 0 {
		n = 0
	}
	if n < len(out) {
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		p.underruns.Add(1)
	}

	if rate := p.source.SampleRate(); rate != p.proc.SampleRate() {
		p.proc.SetSampleRate(rate)
	}
	p.proc.Process(out, p.store.SnapshotSound())
	p.blocks.Add(1)

	if taps := p.taps.Load(); taps != nil {
		for _, t := range *taps {
			t.Write(out, p.proc.Channels(), p.proc.SampleRate())
		}
	}
}

// Stats returns the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Blocks:    p.blocks.Load(),
		Underruns: p.underruns.Load(),
	}
}
