// Package core describes what the post-processing layer consumes from the
// emulation core, plus a synthetic core for running without one.
package core

import (
	"image"
	"image/color"
)

// Framebuffer is one emulated frame: the full pixel grid including the
// overscan border, the active display rectangle inside it, and the border
// colour the core declares for this frame.
type Framebuffer struct {
	Pixels   *image.RGBA
	Active   image.Rectangle
	Border   color.RGBA
	Sequence uint64
}

// Valid reports whether the frame can be processed.
func (f Framebuffer) Valid() bool {
	if f.Pixels == nil {
		return false
	}
	b := f.Pixels.Bounds()
	if b.Empty() || f.Active.Empty() {
		return false
	}
	if len(f.Pixels.Pix) < f.Pixels.Stride*b.Dy() {
		return false
	}
	return f.Active.In(b)
}

// MaxBorder is the widest border that can be shown around the active area,
// the narrowest margin between the active rectangle and the pixel bounds.
func (f Framebuffer) MaxBorder() int {
	if !f.Valid() {
		return 0
	}
	b := f.Pixels.Bounds()
	m := f.Active.Min.X - b.Min.X
	if v := f.Active.Min.Y - b.Min.Y; v < m {
		m = v
	}
	if v := b.Max.X - f.Active.Max.X; v < m {
		m = v
	}
	if v := b.Max.Y - f.Active.Max.Y; v < m {
		m = v
	}
	return m
}

// VideoSource hands out the most recent frame. Frames the display cadence
// does not pick up are simply superseded.
type VideoSource interface {
	Frame() (Framebuffer, bool)
	MaxBorder() int
}

// AudioSource produces interleaved samples. ReadSamples is called from the
// audio cadence and must not block; it returns how many samples it wrote.
type AudioSource interface {
	SampleRate() float64
	Channels() int
	ReadSamples(dst []float32) int
}

// KeyInput is the emulation side of the keyboard relay.
type KeyInput interface {
	KeyEvent(code uint32, char rune, pressed bool)
}
