package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Oto plays the pipeline through an ebitengine/oto player. oto pulls
// bytes through Read on its own goroutine, which is the audio cadence for
// this backend.
type Oto struct {
	ctx        *oto.Context
	player     *oto.Player
	pipeline   *Pipeline
	sampleRate float64
	sampleBuf  []float32 // pre-allocated, grown only when oto asks for more
}

// NewOto creates the oto context and starts playback.
func NewOto(cfg Config, pipeline *Pipeline) (*Oto, error) {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = defaultBlockSize
	}
	rate := pipeline.SampleRate()
	op := &oto.NewContextOptions{
		SampleRate:   int(rate),
		ChannelCount: pipeline.Channels(),
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(float64(cfg.BlockSize) / rate * float64(time.Second)),
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("oto context: %w", err)
	}
	<-ready

	o := &Oto{
		ctx:        ctx,
		pipeline:   pipeline,
		sampleRate: rate,
		sampleBuf:  make([]float32, cfg.BlockSize*pipeline.Channels()),
	}
	o.player = ctx.NewPlayer(o)
	o.player.Play()
	return o, nil
}

// Read implements io.Reader for the oto player.
func (o *Oto) Read(p []byte) (int, error) {
	frameBytes := 4 * o.pipeline.Channels()
	n := (len(p) / frameBytes) * frameBytes
	if n == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	samples := n / 4
	if cap(o.sampleBuf) < samples {
		o.sampleBuf = make([]float32, samples)
	}
	buf := o.sampleBuf[:samples]
	o.pipeline.Fill(buf)

	for i, s := range buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return n, nil
}

// SampleRate returns the context sample rate.
func (o *Oto) SampleRate() float64 { return o.sampleRate }

// Close stops playback.
func (o *Oto) Close() error {
	if o.player == nil {
		return nil
	}
	o.player.Pause()
	err := o.player.Close()
	o.player = nil
	return err
}
