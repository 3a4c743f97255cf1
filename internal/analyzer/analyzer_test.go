package analyzer

import (
	"math"
	"testing"
)

const testRate = 48_000

func tone(n int, freq, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}
	return out
}

func TestNextPow2(t *testing.T) {
	cases := map[int]int{
		0:   1,
		1:   1,
		2:   2,
		3:   4,
		5:   8,
		16:  16,
		31:  32,
		257: 512,
	}
	for input, want := range cases {
		if got := nextPow2(input); got != want {
			t.Fatalf("nextPow2(%d)=%d want=%d", input, got, want)
		}
	}
}

func TestClamp(t *testing.T) {
	if clamp(2, 0, 1) != 1 {
		t.Fatalf("expected clamp high to be 1")
	}
	if clamp(-1, 0, 1) != 0 {
		t.Fatalf("expected clamp low to be 0")
	}
	if clamp(0.5, 0, 1) != 0.5 {
		t.Fatalf("expected clamp middle to be unchanged")
	}
}

func TestSilenceIsZero(t *testing.T) {
	m := New(Config{SampleRate: testRate})
	if got := m.Analyze(make([]float32, 2048)); got != (Levels{}) {
		t.Fatalf("silence levels=%+v", got)
	}
	if got := m.Analyze(nil); got != (Levels{}) {
		t.Fatalf("empty levels=%+v", got)
	}
}

func TestRMSAndPeak(t *testing.T) {
	m := New(Config{SampleRate: testRate})
	got := m.Analyze(tone(4800, 1000, 0.5))
	if math.Abs(got.RMS-0.5/math.Sqrt2) > 1e-3 {
		t.Fatalf("rms=%f", got.RMS)
	}
	if math.Abs(got.Peak-0.5) > 1e-3 {
		t.Fatalf("peak=%f", got.Peak)
	}
}

func TestBandsFollowTone(t *testing.T) {
	m := New(Config{SampleRate: testRate, Size: 2048})

	low := m.Analyze(tone(2048, 100, 0.5))
	if !(low.Low > 0.2 && low.Low > 5*low.Mid && low.Low > 5*low.High) {
		t.Fatalf("100Hz levels=%+v", low)
	}

	high := m.Analyze(tone(2048, 6000, 0.5))
	if !(high.High > 0.2 && high.High > 5*high.Low && high.High > 5*high.Mid) {
		t.Fatalf("6kHz levels=%+v", high)
	}
}

func TestGateZeroesBelowFloor(t *testing.T) {
	l := Gate(Levels{Low: 0.05, Mid: 0.55, Peak: 1}, 0.1)
	if l.Low != 0 {
		t.Fatalf("low=%f", l.Low)
	}
	if math.Abs(l.Mid-0.5) > 1e-9 || l.Peak != 1 {
		t.Fatalf("levels=%+v", l)
	}
}

func TestHoldReleases(t *testing.T) {
	held := Hold(Levels{Peak: 1}, Levels{Peak: 0.2, RMS: 0.3}, 0.5)
	if held.Peak != 0.5 || held.RMS != 0.3 {
		t.Fatalf("held=%+v", held)
	}
}

func TestDecibels(t *testing.T) {
	if got := Decibels(1); got != 0 {
		t.Fatalf("dB(1)=%f", got)
	}
	if got := Decibels(0); got != -96 {
		t.Fatalf("dB(0)=%f", got)
	}
	if got := Decibels(0.5); math.Abs(got+6.0206) > 1e-3 {
		t.Fatalf("dB(0.5)=%f", got)
	}
}

func TestTapDownmixesAndAnalyzes(t *testing.T) {
	tap := NewTap(New(Config{SampleRate: testRate, Size: 256}))
	stereo := make([]float32, 512)
	for i := 0; i < len(stereo); i += 2 {
		stereo[i] = 0.5
		stereo[i+1] = -0.5
	}
	tap.Write(stereo, 2, testRate)
	if got := tap.Levels(); got.Peak != 0 {
		t.Fatalf("opposed channels should cancel, peak=%f", got.Peak)
	}

	for i := range stereo {
		stereo[i] = 0.25
	}
	tap.Write(stereo, 2, testRate)
	if got := tap.Levels(); math.Abs(got.Peak-0.25) > 1e-6 {
		t.Fatalf("peak=%f", got.Peak)
	}
}

func TestTapSkipsWhileReaderHoldsRing(t *testing.T) {
	tap := NewTap(New(Config{SampleRate: testRate, Size: 64}))
	tap.mu.Lock()
	tap.Write(make([]float32, 16), 1, testRate)
	tap.mu.Unlock()
	if tap.Skipped() != 1 {
		t.Fatalf("skipped=%d", tap.Skipped())
	}
}
