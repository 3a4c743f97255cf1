package audio

import (
	"sync"
	"time"
)

// BackendNull drives the pipeline from a timer without any output device.
const BackendNull = "null"

// Null pulls blocks from the pipeline at real-time pace and discards them,
// so taps such as the meter and the recorder run headless.
type Null struct {
	pipeline *Pipeline
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewNull starts the timer loop.
func NewNull(cfg Config, pipeline *Pipeline) *Null {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = defaultBlockSize
	}
	n := &Null{
		pipeline: pipeline,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	period := time.Duration(float64(cfg.BlockSize) / pipeline.SampleRate() * float64(time.Second))
	go n.run(make([]float32, cfg.BlockSize*pipeline.Channels()), period)
	return n
}

func (n *Null) run(block []float32, period time.Duration) {
	defer close(n.done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.pipeline.Fill(block)
		}
	}
}

// SampleRate returns the pipeline rate.
func (n *Null) SampleRate() float64 { return n.pipeline.SampleRate() }

// Close stops the loop and waits for the last block.
func (n *Null) Close() error {
	n.once.Do(func() { close(n.stop) })
	<-n.done
	return nil
}
