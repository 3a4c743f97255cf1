package audio

import (
	"math"

	"github.com/guidoenr/spectrefx/internal/params"
)

// onePole holds the running state of one channel's filters.
type onePole struct {
	hpPrevIn  float64
	hpPrevOut float64
	lpOut     float64
}

// Processor applies high-pass, low-pass and volume to interleaved blocks.
// Filter state lives across blocks; a cutoff change only swaps the
// coefficient.
type Processor struct {
	channels   int
	sampleRate float64

	state []onePole

	hpCutoff float64
	lpCutoff float64
	hpRate   float64
	lpRate   float64
	hpAlpha  float64
	lpAlpha  float64
	primed   bool
}

// NewProcessor creates a Processor for a stream layout.
func NewProcessor(channels int, sampleRate float64) *Processor {
	if channels < 1 {
		channels = 1
	}
	return &Processor{
		channels:   channels,
		sampleRate: sampleRate,
		state:      make([]onePole, channels),
	}
}

// Channels returns the interleave width.
func (p *Processor) Channels() int { return p.channels }

// SampleRate returns the rate cutoffs are interpreted against.
func (p *Processor) SampleRate() float64 { return p.sampleRate }

// SetSampleRate changes the stream rate. Coefficients follow on the next
// block; filter state is kept.
func (p *Processor) SetSampleRate(rate float64) {
	p.sampleRate = rate
}

// HighPassCoefficient returns a for y = a*(y1 + x - x1). A cutoff at or
// below zero gives 1, which passes the input through unchanged.
func HighPassCoefficient(cutoff, sampleRate float64) float64 {
	if cutoff <= 0 || sampleRate <= 0 || math.IsNaN(cutoff) {
		return 1
	}
	rc := 1 / (2 * math.Pi * cutoff)
	dt := 1 / sampleRate
	return rc / (rc + dt)
}

// MinLowPassCutoff is the lowest cutoff the low-pass runs at. A zero
// coefficient would hold the last output forever, so lower settings,
// zero included, are treated as this.
const MinLowPassCutoff = 1.0

// LowPassCoefficient returns α for y += α(x - y). A cutoff at or above
// Nyquist gives 1, which passes the input through unchanged. Cutoffs below
// MinLowPassCutoff use MinLowPassCutoff.
func LowPassCoefficient(cutoff, sampleRate float64) float64 {
	if sampleRate <= 0 || cutoff >= sampleRate/2 || math.IsNaN(cutoff) {
		return 1
	}
	if cutoff < MinLowPassCutoff {
		cutoff = MinLowPassCutoff
	}
	rc := 1 / (2 * math.Pi * cutoff)
	dt := 1 / sampleRate
	return dt / (rc + dt)
}

func (p *Processor) updateCoefficients(snd params.Sound) {
	if !p.primed || snd.HighPassFilter != p.hpCutoff || p.sampleRate != p.hpRate {
		p.hpAlpha = HighPassCoefficient(snd.HighPassFilter, p.sampleRate)
		p.hpCutoff = snd.HighPassFilter
		p.hpRate = p.sampleRate
	}
	if !p.primed || snd.LowPassFilter != p.lpCutoff || p.sampleRate != p.lpRate {
		p.lpAlpha = LowPassCoefficient(snd.LowPassFilter, p.sampleRate)
		p.lpCutoff = snd.LowPassFilter
		p.lpRate = p.sampleRate
	}
	p.primed = true
}

// Process filters and scales block in place using one sound snapshot.
// block is interleaved; a trailing partial frame is processed as far as it
// goes.
func (p *Processor) Process(block []float32, snd params.Sound) {
	p.updateCoefficients(snd)

	hp := p.hpAlpha
	lp := p.lpAlpha
	vol := snd.Volume
	if vol < 0 || math.IsNaN(vol) {
		vol = 0
	}

	for i, x := range block {
		st := &p.state[i%p.channels]
		in := float64(x)

		y := in
		if hp != 1 {
			y = hp * (st.hpPrevOut + in - st.hpPrevIn)
		}
		st.hpPrevIn = in
		st.hpPrevOut = y

		if lp == 1 {
			st.lpOut = y
		} else {
			st.lpOut += lp * (y - st.lpOut)
		}

		block[i] = float32(st.lpOut * vol)
	}
}
