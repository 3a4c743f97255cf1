package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/guidoenr/spectrefx/internal/params"
)

const testRate = 48_000

func openSound() params.Sound {
	return params.Sound{Volume: 1, HighPassFilter: 0, LowPassFilter: testRate / 2}
}

func sine(n int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}
	return out
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func TestOpenFiltersAreTransparent(t *testing.T) {
	in := sine(1024, 1000)
	block := append([]float32(nil), in...)
	NewProcessor(1, testRate).Process(block, openSound())
	for i := range in {
		if block[i] != in[i] {
			t.Fatalf("sample %d changed: %f -> %f", i, in[i], block[i])
		}
	}
}

func TestVolumeZeroSilences(t *testing.T) {
	cases := []params.Sound{
		{Volume: 0, HighPassFilter: 0, LowPassFilter: testRate / 2},
		{Volume: 0, HighPassFilter: 500, LowPassFilter: 2000},
		{Volume: 0, HighPassFilter: 20_000, LowPassFilter: 10},
	}
	for _, snd := range cases {
		p := NewProcessor(2, testRate)
		for b := 0; b < 4; b++ {
			block := sine(256, 440)
			p.Process(block, snd)
			for i, v := range block {
				if v != 0 {
					t.Fatalf("%+v block %d sample %d=%f", snd, b, i, v)
				}
			}
		}
	}
}

func TestVolumeScalesLinearly(t *testing.T) {
	block := []float32{0.5, -0.5, 0.25}
	snd := openSound()
	snd.Volume = 0.5
	NewProcessor(1, testRate).Process(block, snd)
	want := []float32{0.25, -0.25, 0.125}
	for i := range want {
		if block[i] != want[i] {
			t.Fatalf("sample %d=%f want=%f", i, block[i], want[i])
		}
	}
}

func TestLowPassAttenuatesHighFrequencies(t *testing.T) {
	snd := openSound()
	snd.LowPassFilter = 500

	low := sine(4800, 100)
	high := sine(4800, 8000)
	lowIn, highIn := rms(low), rms(high)

	NewProcessor(1, testRate).Process(low, snd)
	NewProcessor(1, testRate).Process(high, snd)

	if ratio := rms(high[2400:]) / highIn; ratio > 0.15 {
		t.Fatalf("8kHz passed with ratio %f", ratio)
	}
	if ratio := rms(low[2400:]) / lowIn; ratio < 0.9 {
		t.Fatalf("100Hz attenuated to ratio %f", ratio)
	}
}

func TestHighPassRemovesDC(t *testing.T) {
	snd := openSound()
	snd.HighPassFilter = 200
	block := make([]float32, 9600)
	for i := range block {
		block[i] = 0.5
	}
	NewProcessor(1, testRate).Process(block, snd)
	if tail := block[len(block)-1]; math.Abs(float64(tail)) > 1e-3 {
		t.Fatalf("dc not removed, tail=%f", tail)
	}
}

func TestCoefficientBounds(t *testing.T) {
	if got := HighPassCoefficient(0, testRate); got != 1 {
		t.Fatalf("hp(0)=%f", got)
	}
	if got := LowPassCoefficient(testRate/2, testRate); got != 1 {
		t.Fatalf("lp(nyquist)=%f", got)
	}
	if got, want := LowPassCoefficient(0, testRate), LowPassCoefficient(MinLowPassCutoff, testRate); got != want || got <= 0 {
		t.Fatalf("lp(0)=%f, want %f", got, want)
	}
	a := HighPassCoefficient(1000, testRate)
	b := HighPassCoefficient(1000, testRate/2)
	if !(a > 0 && a < 1 && b < a) {
		t.Fatalf("hp coefficients a=%f b=%f", a, b)
	}
}

func TestClosedLowPassDoesNotHoldOffset(t *testing.T) {
	snd := openSound()
	p := NewProcessor(1, testRate)
	dc := make([]float32, 64)
	for i := range dc {
		dc[i] = 0.5
	}
	p.Process(dc, snd)

	snd.LowPassFilter = 0
	block := []float32{-0.5, 0.5, -0.5, 0}
	p.Process(block, snd)
	if block[3] >= 0.5 {
		t.Fatalf("output frozen at previous level: %v", block)
	}

	silence := make([]float32, testRate)
	p.Process(silence, snd)
	if last := silence[len(silence)-1]; math.Abs(float64(last)) > 0.01 {
		t.Fatalf("offset still held after 1s of silence: %f", last)
	}
}

func TestCutoffChangeKeepsFilterState(t *testing.T) {
	snd := openSound()
	snd.HighPassFilter = 100
	snd.LowPassFilter = 4000

	p := NewProcessor(1, testRate)
	first := sine(480, 440)
	p.Process(first, snd)
	before := p.state[0]
	if before.hpPrevOut == 0 && before.lpOut == 0 {
		t.Fatalf("expected filter state after first block")
	}

	// a block with no samples exercises only the parameter change
	snd.HighPassFilter = 1000
	p.Process(nil, snd)
	if p.state[0] != before {
		t.Fatalf("state reset by cutoff change: %+v -> %+v", before, p.state[0])
	}
	if p.hpAlpha != HighPassCoefficient(1000, testRate) {
		t.Fatalf("coefficient not recomputed")
	}

	// the first output of the next block continues from the held state
	next := sine(481, 440)[480:]
	x := float64(next[0])
	hp := p.hpAlpha * (before.hpPrevOut + x - before.hpPrevIn)
	lp := before.lpOut + p.lpAlpha*(hp-before.lpOut)
	p.Process(next, snd)
	if math.Abs(float64(next[0])-lp) > 1e-6 {
		t.Fatalf("discontinuity: got %f want %f", next[0], lp)
	}
}

func TestCoefficientsOnlyRecomputedOnChange(t *testing.T) {
	snd := openSound()
	snd.LowPassFilter = 3000
	p := NewProcessor(1, testRate)
	p.Process(make([]float32, 8), snd)
	p.lpAlpha = 0.123 // sentinel
	p.Process(make([]float32, 8), snd)
	if p.lpAlpha != 0.123 {
		t.Fatalf("coefficient recomputed without a cutoff change")
	}
	p.SetSampleRate(44_100)
	p.Process(make([]float32, 8), snd)
	if p.lpAlpha != LowPassCoefficient(3000, 44_100) {
		t.Fatalf("coefficient not recomputed for new sample rate")
	}
}

func TestInterleavedChannelsFilteredIndependently(t *testing.T) {
	snd := openSound()
	snd.LowPassFilter = 1000
	p := NewProcessor(2, testRate)
	block := make([]float32, 64)
	for i := 0; i < len(block); i += 2 {
		block[i] = 1
	}
	p.Process(block, snd)
	for i := 1; i < len(block); i += 2 {
		if block[i] != 0 {
			t.Fatalf("right channel leaked: %f", block[i])
		}
	}
	if block[len(block)-2] <= 0 {
		t.Fatalf("left channel empty")
	}
}

func TestOtoReadEncodesFloat32(t *testing.T) {
	src := &stubSource{rate: testRate, channels: 1, value: 0.5}
	store := params.NewStore(params.Limits{SampleRate: testRate})
	o := &Oto{pipeline: NewPipeline(src, store)}

	p := make([]byte, 18)
	n, err := o.Read(p)
	if err != nil || n != 16 {
		t.Fatalf("read n=%d err=%v", n, err)
	}
	for i := 0; i < n; i += 4 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(p[i:]))
		if v != 0.5 {
			t.Fatalf("sample %d=%f", i/4, v)
		}
	}
}
