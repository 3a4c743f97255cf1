package analyzer

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Band edges in Hz. High is capped at Nyquist.
const (
	lowMinHz  = 20
	lowMaxHz  = 250
	midMaxHz  = 2000
	highMaxHz = 16000
)

// Meter measures the level of processed audio: RMS and peak over the
// block, plus low/mid/high band levels from a Hann-windowed FFT.
type Meter struct {
	sampleRate float64
	size       int
	floor      float64

	buffer []float64
	window []float64
	winSum float64
}

// Config controls Meter behavior.
type Config struct {
	SampleRate float64
	// Size is the FFT length; rounded up to a power of two.
	Size int
	// Floor gates levels at or below it to zero.
	Floor float64
}

// New creates a Meter with sensible defaults.
func New(cfg Config) *Meter {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48_000
	}
	if cfg.Size <= 0 {
		cfg.Size = 1024
	}
	m := &Meter{
		sampleRate: cfg.SampleRate,
		floor:      clamp(cfg.Floor, 0, 0.99),
	}
	m.ensureWorkspace(nextPow2(cfg.Size))
	return m
}

// SampleRate returns the rate band edges are computed against.
func (m *Meter) SampleRate() float64 { return m.sampleRate }

// SetSampleRate follows a stream rate change.
func (m *Meter) SetSampleRate(rate float64) {
	if rate > 0 {
		m.sampleRate = rate
	}
}

// Size returns the FFT length.
func (m *Meter) Size() int { return m.size }

// Analyze returns the levels of the provided mono samples. Only the last
// Size samples reach the FFT; RMS and peak use all of them.
func (m *Meter) Analyze(samples []float32) Levels {
	if len(samples) == 0 {
		return Levels{}
	}

	var sumSq, peak float64
	for _, s := range samples {
		v := float64(s)
		sumSq += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	levels := Levels{
		RMS:  math.Sqrt(sumSq / float64(len(samples))),
		Peak: peak,
	}

	tail := samples
	if len(tail) > m.size {
		tail = tail[len(tail)-m.size:]
	}
	for i := range m.buffer {
		if i < len(tail) {
			m.buffer[i] = float64(tail[i]) * m.window[i]
			continue
		}
		m.buffer[i] = 0
	}
	spectrum := fft.FFTReal(m.buffer)

	resolution := m.sampleRate / float64(m.size)
	highMax := math.Min(highMaxHz, m.sampleRate/2)
	levels.Low = m.bandLevel(spectrum, resolution, lowMinHz, lowMaxHz)
	levels.Mid = m.bandLevel(spectrum, resolution, lowMaxHz, midMaxHz)
	levels.High = m.bandLevel(spectrum, resolution, midMaxHz, highMax)

	return Gate(levels, m.floor)
}

// bandLevel returns an amplitude estimate for [minHz, maxHz): the root of
// the band's power scaled by the window's coherent gain.
func (m *Meter) bandLevel(spectrum []complex128, resolution, minHz, maxHz float64) float64 {
	if minHz >= maxHz || m.winSum == 0 {
		return 0
	}
	lo := int(math.Ceil(minHz / resolution))
	hi := int(math.Ceil(maxHz / resolution))
	if hi > len(spectrum)/2 {
		hi = len(spectrum) / 2
	}
	if lo >= hi {
		return 0
	}
	power := 0.0
	for _, val := range spectrum[lo:hi] {
		re, im := real(val), imag(val)
		power += re*re + im*im
	}
	return clamp(2*math.Sqrt(power)/m.winSum, 0, 1)
}

func (m *Meter) ensureWorkspace(size int) {
	m.size = size
	m.buffer = make([]float64, size)
	m.window = window.Hann(size)
	m.winSum = 0
	for _, w := range m.window {
		m.winSum += w
	}
}

// Decibels converts a linear level to dBFS, flooring at -96.
func Decibels(v float64) float64 {
	if v <= 1.0/65536 {
		return -96
	}
	return 20 * math.Log10(v)
}

func envelope(current, input, release float64) float64 {
	if input > current {
		return input
	}
	return current * release
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

func clamp(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
