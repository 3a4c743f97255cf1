package core

import (
	"image"
	"image/color"
	"math"
	"sync/atomic"
)

// ZX Spectrum geometry.
const (
	ActiveWidth  = 256
	ActiveHeight = 192
	BorderSize   = 32

	beeperAmplitude = 0.25
	baseToneHz      = 440.0
)

// Palette holds the 15 distinct Spectrum colours (normal then bright, with
// one black).
var Palette = []color.RGBA{
	{0x00, 0x00, 0x00, 0xff},
	{0x00, 0x00, 0xd7, 0xff},
	{0xd7, 0x00, 0x00, 0xff},
	{0xd7, 0x00, 0xd7, 0xff},
	{0x00, 0xd7, 0x00, 0xff},
	{0x00, 0xd7, 0xd7, 0xff},
	{0xd7, 0xd7, 0x00, 0xff},
	{0xd7, 0xd7, 0xd7, 0xff},
	{0x00, 0x00, 0xff, 0xff},
	{0xff, 0x00, 0x00, 0xff},
	{0xff, 0x00, 0xff, 0xff},
	{0x00, 0xff, 0x00, 0xff},
	{0x00, 0xff, 0xff, 0xff},
	{0xff, 0xff, 0x00, 0xff},
	{0xff, 0xff, 0xff, 0xff},
}

// Synthetic stands in for an emulation core: it draws a colour-bar test
// card with a moving marker and plays a beeper square tone. Key presses
// cycle the border colour and step the tone pitch.
//
// Frame is driven by the display cadence and ReadSamples by the audio
// cadence; the only state they share is atomic.
type Synthetic struct {
	sampleRate float64

	sequence atomic.Uint64
	border   atomic.Uint32
	semitone atomic.Int32
	muted    atomic.Bool

	// audio cadence only
	phase float64
}

// NewSynthetic creates a synthetic core producing mono audio at sampleRate.
func NewSynthetic(sampleRate float64) *Synthetic {
	if sampleRate <= 0 {
		sampleRate = 48_000
	}
	s := &Synthetic{sampleRate: sampleRate}
	s.border.Store(7)
	return s
}

// MaxBorder reports the border the synthetic geometry carries.
func (s *Synthetic) MaxBorder() int { return BorderSize }

// SampleRate implements AudioSource.
func (s *Synthetic) SampleRate() float64 { return s.sampleRate }

// Channels implements AudioSource.
func (s *Synthetic) Channels() int { return 1 }

// SetMuted silences the beeper.
func (s *Synthetic) SetMuted(m bool) { s.muted.Store(m) }

// BorderColor returns the border colour currently declared.
func (s *Synthetic) BorderColor() color.RGBA {
	return Palette[int(s.border.Load())%len(Palette)]
}

// Frame renders the next test card.
func (s *Synthetic) Frame() (Framebuffer, bool) {
	seq := s.sequence.Add(1)
	border := s.BorderColor()

	w := ActiveWidth + 2*BorderSize
	h := ActiveHeight + 2*BorderSize
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	active := image.Rect(BorderSize, BorderSize, BorderSize+ActiveWidth, BorderSize+ActiveHeight)

	barWidth := ActiveWidth / 8
	markerX := int(seq*2) % ActiveWidth
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := border
			if (image.Point{X: x, Y: y}).In(active) {
				ax := x - active.Min.X
				ay := y - active.Min.Y
				idx := 7 - ax/barWidth
				if ay >= ActiveHeight/2 {
					idx += 8
				}
				if idx >= len(Palette) {
					idx = len(Palette) - 1
				}
				c = Palette[idx]
				if ax >= markerX && ax < markerX+4 && ay%16 < 8 {
					c = Palette[len(Palette)-1]
				}
			}
			img.SetRGBA(x, y, c)
		}
	}

	return Framebuffer{
		Pixels:   img,
		Active:   active,
		Border:   border,
		Sequence: seq,
	}, true
}

// ReadSamples fills dst with the beeper tone. It never blocks.
func (s *Synthetic) ReadSamples(dst []float32) int {
	if s.muted.Load() {
		for i := range dst {
			dst[i] = 0
		}
		return len(dst)
	}
	freq := baseToneHz * math.Pow(2, float64(s.semitone.Load())/12)
	step := freq / s.sampleRate
	for i := range dst {
		if s.phase < 0.5 {
			dst[i] = beeperAmplitude
		} else {
			dst[i] = -beeperAmplitude
		}
		s.phase += step
		if s.phase >= 1 {
			s.phase -= 1
		}
	}
	return len(dst)
}

// KeyEvent implements KeyInput. Any key press moves the border to the next
// palette entry; '+' and '-' step the beeper pitch.
func (s *Synthetic) KeyEvent(code uint32, char rune, pressed bool) {
	if !pressed {
		return
	}
	switch char {
	case '+', '=':
		s.semitone.Add(1)
		return
	case '-', '_':
		s.semitone.Add(-1)
		return
	}
	s.border.Store((s.border.Load() + 1) % uint32(len(Palette)))
}
