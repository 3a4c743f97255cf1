package audio

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Sink is a running playback backend.
type Sink interface {
	SampleRate() float64
	Close() error
}

// Backend names.
const (
	BackendPortAudio = "portaudio"
	BackendOto       = "oto"
)

var (
	initOnce sync.Once
	termOnce sync.Once
	initErr  error

	errNotInitialized = errors.New("portaudio not initialized")
)

// Initialize wraps portaudio.Initialize with sync.Once so multiple callers are safe.
func Initialize() error {
	initOnce.Do(func() {
		initErr = portaudio.Initialize()
	})
	return initErr
}

// Terminate wraps portaudio.Terminate with sync.Once to balance Initialize.
// It is a no-op when Initialize was never called or failed.
func Terminate() {
	initOnce.Do(func() {
		initErr = errNotInitialized
	})
	if initErr != nil {
		return
	}
	termOnce.Do(func() {
		_ = portaudio.Terminate()
	})
}

// Open starts the named backend for pipeline.
func Open(backend string, cfg Config, pipeline *Pipeline) (Sink, error) {
	switch strings.ToLower(backend) {
	case "", BackendPortAudio:
		if err := Initialize(); err != nil {
			return nil, fmt.Errorf("initialize portaudio: %w", err)
		}
		return NewPlayback(cfg, pipeline)
	case BackendOto:
		return NewOto(cfg, pipeline)
	case BackendNull:
		return NewNull(cfg, pipeline), nil
	}
	return nil, fmt.Errorf("unknown audio backend %q", backend)
}
