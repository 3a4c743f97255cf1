package params

import (
	"errors"
	"fmt"
	"math"
)

// ID names a tunable parameter.
type ID string

const (
	BorderWidth    ID = "borderWidth"
	Curve          ID = "curve"
	Saturation     ID = "saturation"
	Contrast       ID = "contrast"
	Brightness     ID = "brightness"
	Volume         ID = "volume"
	HighPassFilter ID = "highPassFilter"
	LowPassFilter  ID = "lowPassFilter"
)

// ErrUnknownParameter is returned for identifiers outside the parameter table.
var ErrUnknownParameter = errors.New("unknown parameter")

// All lists every parameter in display order.
var All = []ID{
	BorderWidth,
	Curve,
	Saturation,
	Contrast,
	Brightness,
	Volume,
	HighPassFilter,
	LowPassFilter,
}

// Parameter describes one tunable value and its valid range.
type Parameter struct {
	ID      ID      `json:"id"`
	Value   float64 `json:"value"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

// Display is the video half of the configuration. A value of this type
// taken from the store is the snapshot a single frame renders with.
type Display struct {
	BorderWidth float64 `json:"borderWidth"`
	Curve       float64 `json:"curve"`
	Saturation  float64 `json:"saturation"`
	Contrast    float64 `json:"contrast"`
	Brightness  float64 `json:"brightness"`
}

// Sound is the audio half of the configuration, snapshotted once per block.
type Sound struct {
	Volume         float64 `json:"volume"`
	HighPassFilter float64 `json:"highPassFilter"`
	LowPassFilter  float64 `json:"lowPassFilter"`
}

// Limits carries the bounds reported by the emulation core and the audio
// stream. They decide the upper end of the border and filter ranges.
type Limits struct {
	MaxBorder  float64
	SampleRate float64
}

const defaultSampleRate = 48_000

func (l Limits) normalized() Limits {
	if l.MaxBorder < 0 || math.IsNaN(l.MaxBorder) {
		l.MaxBorder = 0
	}
	if l.SampleRate <= 0 || math.IsNaN(l.SampleRate) {
		l.SampleRate = defaultSampleRate
	}
	return l
}

// Nyquist returns half the sample rate.
func (l Limits) Nyquist() float64 {
	return l.normalized().SampleRate / 2
}

type bounds struct {
	min, max, def float64
}

func boundsFor(id ID, l Limits) (bounds, error) {
	switch id {
	case BorderWidth:
		return bounds{0, l.MaxBorder, 0}, nil
	case Curve:
		return bounds{0, 1, 0}, nil
	case Saturation:
		return bounds{0, 2, 1}, nil
	case Contrast:
		return bounds{0, 2, 1}, nil
	case Brightness:
		return bounds{-1, 1, 0}, nil
	case Volume:
		return bounds{0, 1, 1}, nil
	case HighPassFilter:
		return bounds{0, l.Nyquist(), 0}, nil
	case LowPassFilter:
		return bounds{0, l.Nyquist(), l.Nyquist()}, nil
	}
	return bounds{}, fmt.Errorf("%w: %q", ErrUnknownParameter, id)
}

// Range reports min, max and default for id under the given limits.
func Range(id ID, l Limits) (minVal, maxVal, def float64, err error) {
	b, err := boundsFor(id, l.normalized())
	if err != nil {
		return 0, 0, 0, err
	}
	return b.min, b.max, b.def, nil
}

// values is the complete parameter set. The store swaps whole values so
// readers never see half of an update.
type values struct {
	display Display
	sound   Sound
}

func defaults(l Limits) values {
	return values{
		display: Display{
			BorderWidth: 0,
			Curve:       0,
			Saturation:  1,
			Contrast:    1,
			Brightness:  0,
		},
		sound: Sound{
			Volume:         1,
			HighPassFilter: 0,
			LowPassFilter:  l.Nyquist(),
		},
	}
}

func (v *values) field(id ID) *float64 {
	switch id {
	case BorderWidth:
		return &v.display.BorderWidth
	case Curve:
		return &v.display.Curve
	case Saturation:
		return &v.display.Saturation
	case Contrast:
		return &v.display.Contrast
	case Brightness:
		return &v.display.Brightness
	case Volume:
		return &v.sound.Volume
	case HighPassFilter:
		return &v.sound.HighPassFilter
	case LowPassFilter:
		return &v.sound.LowPassFilter
	}
	return nil
}

func clamp(v, minVal, maxVal float64) float64 {
	if math.IsNaN(v) {
		return minVal
	}
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
