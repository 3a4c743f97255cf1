package audio

import (
	"testing"
	"time"

	"github.com/guidoenr/spectrefx/internal/params"
)

type stubSource struct {
	rate     float64
	channels int
	value    float32
	limit    int
}

func (s *stubSource) SampleRate() float64 { return s.rate }
func (s *stubSource) Channels() int       { return s.channels }
func (s *stubSource) ReadSamples(dst []float32) int {
	n := len(dst)
	if s.limit > 0 && s.limit < n {
		n = s.limit
	}
	for i := 0; i < n; i++ {
		dst[i] = s.value
	}
	return n
}

type countingTap struct {
	blocks int
	last   float32
}

func (c *countingTap) Write(block []float32, channels int, sampleRate float64) {
	c.blocks++
	if len(block) > 0 {
		c.last = block[len(block)-1]
	}
}

func TestPipelineAppliesSnapshotPerBlock(t *testing.T) {
	store := params.NewStore(params.Limits{SampleRate: testRate})
	src := &stubSource{rate: testRate, channels: 1, value: 0.8}
	p := NewPipeline(src, store)

	out := make([]float32, 16)
	p.Fill(out)
	if out[0] != 0.8 {
		t.Fatalf("default volume should pass input, got %f", out[0])
	}

	store.Set(params.Volume, 0)
	p.Fill(out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d=%f after volume=0", i, v)
		}
	}
}

func TestPipelineUnderrunPadsSilence(t *testing.T) {
	store := params.NewStore(params.Limits{SampleRate: testRate})
	src := &stubSource{rate: testRate, channels: 1, value: 0.5, limit: 4}
	p := NewPipeline(src, store)

	out := make([]float32, 8)
	for i := range out {
		out[i] = 9
	}
	p.Fill(out)
	if out[3] != 0.5 || out[4] != 0 || out[7] != 0 {
		t.Fatalf("unexpected block %v", out)
	}
	if s := p.Stats(); s.Underruns != 1 || s.Blocks != 1 {
		t.Fatalf("stats=%+v", s)
	}
}

func TestPipelineTapsSeeProcessedBlock(t *testing.T) {
	store := params.NewStore(params.Limits{SampleRate: testRate})
	store.Set(params.Volume, 0.5)
	src := &stubSource{rate: testRate, channels: 2, value: 1}
	p := NewPipeline(src, store)

	tap := &countingTap{}
	p.AddTap(tap)
	p.Fill(make([]float32, 32))
	p.Fill(make([]float32, 32))
	if tap.blocks != 2 || tap.last != 0.5 {
		t.Fatalf("tap blocks=%d last=%f", tap.blocks, tap.last)
	}
}

func TestPipelineFollowsSourceRate(t *testing.T) {
	store := params.NewStore(params.Limits{SampleRate: testRate})
	src := &stubSource{rate: testRate, channels: 1}
	p := NewPipeline(src, store)
	src.rate = 22_050
	p.Fill(make([]float32, 4))
	if p.proc.SampleRate() != 22_050 {
		t.Fatalf("processor rate=%f", p.proc.SampleRate())
	}
}

func TestNullSinkDrivesPipeline(t *testing.T) {
	store := params.NewStore(params.Limits{SampleRate: 8000})
	src := &stubSource{rate: 8000, channels: 1, value: 0.1}
	p := NewPipeline(src, store)
	tap := &signalTap{ch: make(chan struct{}, 1)}
	p.AddTap(tap)

	sink, err := Open(BackendNull, Config{BlockSize: 80}, p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	select {
	case <-tap.ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("no block delivered")
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.SampleRate() != 8000 {
		t.Fatalf("rate=%f", sink.SampleRate())
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	store := params.NewStore(params.Limits{})
	p := NewPipeline(&stubSource{rate: 8000, channels: 1}, store)
	if _, err := Open("alsa-direct", Config{}, p); err == nil {
		t.Fatalf("expected error")
	}
}

type signalTap struct {
	ch chan struct{}
}

func (s *signalTap) Write(block []float32, channels int, sampleRate float64) {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}
