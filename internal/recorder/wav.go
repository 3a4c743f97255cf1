package recorder

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth       = 16
	pcmFormat      = 1
	defaultQueue   = 64
	defaultBlockSz = 2048
)

// ErrClosed is returned when a recorder is closed twice.
var ErrClosed = errors.New("recorder closed")

// Config controls WAV.
type Config struct {
	Path       string
	SampleRate int
	Channels   int
	// Queue is the number of blocks buffered between the audio cadence and
	// the writer goroutine.
	Queue int
	Log   *log.Logger
}

// WAV records processed audio to a 16-bit PCM file. Write copies each block
// into a pre-allocated buffer and hands it to a writer goroutine; when no
// buffer is free the block is dropped and counted.
type WAV struct {
	cfg  Config
	file *os.File
	enc  *wav.Encoder

	blocks chan []float32
	free   chan []float32
	stop   chan struct{}
	done   chan struct{}

	pcm *audio.IntBuffer

	closed  atomic.Bool
	dropped atomic.Uint64
	frames  atomic.Uint64
	err     error
}

// Create opens path and starts the writer goroutine.
func Create(cfg Config) (*WAV, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("recorder: empty path")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("recorder: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.Channels < 1 {
		cfg.Channels = 1
	}
	if cfg.Queue <= 0 {
		cfg.Queue = defaultQueue
	}
	if cfg.Log == nil {
		cfg.Log = log.New(io.Discard, "", 0)
	}

	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}

	w := &WAV{
		cfg:    cfg,
		file:   f,
		enc:    wav.NewEncoder(f, cfg.SampleRate, bitDepth, cfg.Channels, pcmFormat),
		blocks: make(chan []float32, cfg.Queue),
		free:   make(chan []float32, cfg.Queue),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		pcm: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: cfg.Channels, SampleRate: cfg.SampleRate},
			SourceBitDepth: bitDepth,
		},
	}
	for i := 0; i < cfg.Queue; i++ {
		w.free <- make([]float32, 0, defaultBlockSz)
	}

	go w.run()
	cfg.Log.Printf("recording %d Hz, %d channel(s) to %s", cfg.SampleRate, cfg.Channels, cfg.Path)
	return w, nil
}

// Write implements audio.Tap. It never blocks.
func (w *WAV) Write(block []float32, channels int, sampleRate float64) {
	if w.closed.Load() || channels != w.cfg.Channels {
		w.dropped.Add(1)
		return
	}
	var buf []float32
	select {
	case buf = <-w.free:
	default:
		w.dropped.Add(1)
		return
	}
	buf = append(buf[:0], block...)
	select {
	case w.blocks <- buf:
	default:
		w.dropped.Add(1)
	}
}

func (w *WAV) run() {
	defer close(w.done)
	for {
		select {
		case buf := <-w.blocks:
			w.encode(buf)
		case <-w.stop:
			for {
				select {
				case buf := <-w.blocks:
					w.encode(buf)
				default:
					return
				}
			}
		}
	}
}

func (w *WAV) encode(buf []float32) {
	if w.err == nil {
		data := w.pcm.Data[:0]
		for _, s := range buf {
			data = append(data, toPCM16(s))
		}
		w.pcm.Data = data
		if err := w.enc.Write(w.pcm); err != nil {
			w.err = err
			w.cfg.Log.Printf("write failed: %v", err)
		} else {
			w.frames.Add(uint64(len(buf) / w.cfg.Channels))
		}
	}
	select {
	case w.free <- buf:
	default:
	}
}

// Close drains queued blocks, finalizes the header and closes the file.
func (w *WAV) Close() error {
	if w.closed.Swap(true) {
		return ErrClosed
	}
	close(w.stop)
	<-w.done

	// an empty recording still gets a valid header
	if w.err == nil && w.frames.Load() == 0 {
		w.pcm.Data = w.pcm.Data[:0]
		w.err = w.enc.Write(w.pcm)
	}

	err := w.err
	if cerr := w.enc.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if cerr := w.file.Close(); err == nil && cerr != nil {
		err = cerr
	}
	w.cfg.Log.Printf("recorded %d frames to %s (%d blocks dropped)", w.frames.Load(), w.cfg.Path, w.dropped.Load())
	if err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	return nil
}

// Dropped returns the number of blocks that were not recorded.
func (w *WAV) Dropped() uint64 { return w.dropped.Load() }

// Frames returns the number of frames written so far.
func (w *WAV) Frames() uint64 { return w.frames.Load() }

func toPCM16(s float32) int {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(math.Round(v * math.MaxInt16))
}
