package render

import (
	"errors"
	"image"
	"image/color"
	"math"
	"runtime"
	"sync"

	"github.com/guidoenr/spectrefx/internal/core"
	"github.com/guidoenr/spectrefx/internal/params"
)

// MaxCurveStrength is the barrel coefficient reached at curve = 1.
const MaxCurveStrength = 0.25

// ErrInvalidFrame is returned for malformed or zero-sized framebuffers. The
// frame should be skipped.
var ErrInvalidFrame = errors.New("invalid framebuffer")

// Processor turns an emulated framebuffer into the displayed image. It is
// meant to be driven from a single display goroutine.
type Processor struct {
	workers int

	curve curveMap
	lut   [256]float64
}

type curveMap struct {
	width  int
	height int
	amount float64
	index  []int32
}

// NewProcessor creates a Processor using up to workers goroutines per frame.
// A non-positive value uses GOMAXPROCS.
func NewProcessor(workers int) *Processor {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Processor{workers: workers}
}

// BorderFor returns the border width in pixels that d produces for fb.
func BorderFor(fb core.Framebuffer, d params.Display) int {
	bw := int(math.Round(d.BorderWidth))
	if bw < 0 || math.IsNaN(d.BorderWidth) {
		bw = 0
	}
	if maxBorder := fb.MaxBorder(); bw > maxBorder {
		bw = maxBorder
	}
	return bw
}

// Process composites the border, grades colour and applies curvature, in
// that order, using one display snapshot for the whole frame.
func (p *Processor) Process(fb core.Framebuffer, d params.Display) (*image.RGBA, error) {
	if !fb.Valid() {
		return nil, ErrInvalidFrame
	}

	bw := BorderFor(fb, d)
	width := fb.Active.Dx() + 2*bw
	height := fb.Active.Dy() + 2*bw
	out := image.NewRGBA(image.Rect(0, 0, width, height))

	// composite origin in source coordinates
	origin := fb.Active.Min.Sub(image.Pt(bw, bw))

	grade := !neutral(d)
	if grade {
		p.buildLUT(d.Contrast, d.Brightness)
	}
	border := fb.Border
	if grade {
		border = p.gradePixel(border, d.Saturation)
	}

	var remap []int32
	if curve := clampFloat(d.Curve, 0, 1); curve > 0 {
		p.ensureCurveMap(width, height, curve)
		remap = p.curve.index
	}

	numWorkers := p.workers
	if numWorkers > height {
		numWorkers = height
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	rowJobs := make(chan int, numWorkers)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rowJobs {
				row := out.Pix[y*out.Stride : y*out.Stride+width*4]
				for x := 0; x < width; x++ {
					cx, cy := x, y
					if remap != nil {
						idx := remap[y*width+x]
						if idx < 0 {
							putRGBA(row[x*4:], border)
							continue
						}
						cx, cy = int(idx)%width, int(idx)/width
					}
					sp := image.Pt(origin.X+cx, origin.Y+cy)
					c := fb.Border
					if sp.In(fb.Active) {
						c = fb.Pixels.RGBAAt(sp.X, sp.Y)
					}
					if grade {
						c = p.gradePixel(c, d.Saturation)
					}
					putRGBA(row[x*4:], c)
				}
			}
		}()
	}

	for y := 0; y < height; y++ {
		rowJobs <- y
	}
	close(rowJobs)
	wg.Wait()

	return out, nil
}

func neutral(d params.Display) bool {
	return d.Contrast == 1 && d.Brightness == 0 && d.Saturation == 1
}

// buildLUT precomputes contrast then brightness for every 8-bit level.
func (p *Processor) buildLUT(contrast, brightness float64) {
	for i := range p.lut {
		c := float64(i) / 255
		c = (c-0.5)*contrast + 0.5
		c += brightness
		p.lut[i] = c
	}
}

// gradePixel finishes the grade with saturation around the pixel's luma.
func (p *Processor) gradePixel(c color.RGBA, saturation float64) color.RGBA {
	r := p.lut[c.R]
	g := p.lut[c.G]
	b := p.lut[c.B]
	luma := 0.299*r + 0.587*g + 0.114*b
	r = luma + (r-luma)*saturation
	g = luma + (g-luma)*saturation
	b = luma + (b-luma)*saturation
	return color.RGBA{R: toByte(r), G: toByte(g), B: toByte(b), A: c.A}
}

// GradeColor applies the colour grade of d to a single colour.
func GradeColor(c color.RGBA, d params.Display) color.RGBA {
	if neutral(d) {
		return c
	}
	var p Processor
	p.buildLUT(d.Contrast, d.Brightness)
	return p.gradePixel(c, d.Saturation)
}

// ensureCurveMap caches, per output size and curve amount, which composite
// pixel each output pixel samples, or -1 when it falls outside.
func (p *Processor) ensureCurveMap(width, height int, curve float64) {
	m := &p.curve
	if m.width == width && m.height == height && m.amount == curve && len(m.index) == width*height {
		return
	}
	m.width = width
	m.height = height
	m.amount = curve
	if cap(m.index) >= width*height {
		m.index = m.index[:width*height]
	} else {
		m.index = make([]int32, width*height)
	}

	k := curve * MaxCurveStrength
	for y := 0; y < height; y++ {
		v := (float64(y)+0.5)/float64(height)*2 - 1
		for x := 0; x < width; x++ {
			u := (float64(x)+0.5)/float64(width)*2 - 1
			sx, sy, ok := Barrel(u, v, k)
			idx := int32(-1)
			if ok {
				px := int(math.Floor((sx + 1) * 0.5 * float64(width)))
				py := int(math.Floor((sy + 1) * 0.5 * float64(height)))
				if px >= 0 && px < width && py >= 0 && py < height {
					idx = int32(py*width + px)
				}
			}
			m.index[y*width+x] = idx
		}
	}
}

// Barrel maps a normalised output coordinate in [-1,1] to the source
// coordinate it samples under barrel strength k. ok is false when the
// source lies outside the image.
func Barrel(u, v, k float64) (su, sv float64, ok bool) {
	f := 1 + k*(u*u+v*v)
	su, sv = u*f, v*f
	ok = su >= -1 && su <= 1 && sv >= -1 && sv <= 1
	return su, sv, ok
}

func putRGBA(dst []uint8, c color.RGBA) {
	dst[0] = c.R
	dst[1] = c.G
	dst[2] = c.B
	dst[3] = c.A
}

func toByte(v float64) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
