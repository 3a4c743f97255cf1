package render

import (
	"fmt"
	"image"
	"image/color"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/guidoenr/spectrefx/internal/params"
)

// upperHalf draws the top pixel as foreground and the bottom one as
// background, giving two image rows per terminal row.
const upperHalf = '▀'

// Terminal presents composed viewport images as text rows.
type Terminal struct {
	width         int
	height        int
	palette       []rune
	paletteName   string
	useANSI       bool
	statusBuilder strings.Builder
}

// Frame contains the rendered rows and optional status text.
type Frame struct {
	Lines  []string
	Status string
}

// Stats is the per-frame information shown in the status bar.
type Stats struct {
	FPS     float64
	Dropped uint64
	Skipped uint64
	Display params.Display
}

var (
	resetANSI         = "\x1b[0m"
	precomputedANSI   [256]string
	precomputedANSIBg [256]string
)

func init() {
	for i := range precomputedANSI {
		precomputedANSI[i] = "\x1b[38;5;" + strconv.Itoa(i) + "m"
		precomputedANSIBg[i] = "\x1b[48;5;" + strconv.Itoa(i) + "m"
	}
}

// NewTerminal creates a Terminal for a grid of width x height cells.
func NewTerminal(width, height int, paletteName string, useANSI bool) (*Terminal, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d height=%d", width, height)
	}
	if paletteName == "" {
		paletteName = "default"
	}
	return &Terminal{
		width:       width,
		height:      height,
		palette:     Palette(paletteName),
		paletteName: paletteName,
		useANSI:     useANSI,
	}, nil
}

// Resize updates the cell grid.
func (t *Terminal) Resize(width, height int) {
	if width > 0 {
		t.width = width
	}
	if height > 0 {
		t.height = height
	}
}

// PixelSize is the viewport, in image pixels, the terminal can show.
func (t *Terminal) PixelSize() (int, int) {
	return t.width, t.height * 2
}

// PaletteName returns the glyph ramp in use.
func (t *Terminal) PaletteName() string { return t.paletteName }

// Render converts img, normally sized to PixelSize, into rows of text.
func (t *Terminal) Render(img *image.RGBA, stats Stats) Frame {
	if t.width <= 0 || t.height <= 0 || img == nil {
		return Frame{}
	}

	lines := make([]string, t.height)
	width := t.width
	height := t.height
	useANSI := t.useANSI
	bounds := img.Bounds()

	pixel := func(x, y int) color.RGBA {
		p := image.Pt(bounds.Min.X+x, bounds.Min.Y+y)
		if !p.In(bounds) {
			return color.RGBA{A: 0xff}
		}
		return img.RGBAAt(p.X, p.Y)
	}

	numWorkers := runtime.GOMAXPROCS(0)
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
				var builder strings.Builder
				builder.Grow(width * 16)
				lastFg, lastBg := -1, -1
				for x := 0; x < width; x++ {
					top := pixel(x, y*2)
					bottom := pixel(x, y*2+1)
					if useANSI {
						fg := rgbToANSI(top)
						bg := rgbToANSI(bottom)
						if fg != lastFg {
							builder.WriteString(colorCode(fg))
							lastFg = fg
						}
						if bg != lastBg {
							builder.WriteString(precomputedANSIBg[clampInt(bg, 0, 255)])
							lastBg = bg
						}
						builder.WriteRune(upperHalf)
						continue
					}
					l := (luma(top) + luma(bottom)) / 2
					idx := clampInt(int(l*float64(len(t.palette)-1)+0.5), 0, len(t.palette)-1)
					builder.WriteRune(t.palette[idx])
				}
				if useANSI {
					builder.WriteString(resetANSI)
				}
				lines[y] = builder.String()
			}
		}()
	}

	for y := 0; y < height; y++ {
		rowJobs <- y
	}
	close(rowJobs)
	wg.Wait()

	return Frame{
		Lines:  lines,
		Status: t.buildStatus(stats),
	}
}

func luma(c color.RGBA) float64 {
	return (0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)) / 255
}

func colorCode(index int) string {
	return precomputedANSI[clampInt(index, 0, len(precomputedANSI)-1)]
}

func rgbToANSI(c color.RGBA) int {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255

	// grayscale ramp for near-neutral colours
	if abs(r-g) < 0.02 && abs(g-b) < 0.02 {
		if r < 0.02 {
			return 16
		}
		if r > 0.98 {
			return 231
		}
		return 232 + clampInt(int(r*23+0.5), 0, 23)
	}

	ri := int(clampFloat(r*5+0.5, 0, 5))
	gi := int(clampFloat(g*5+0.5, 0, 5))
	bi := int(clampFloat(b*5+0.5, 0, 5))

	return 16 + 36*ri + 6*gi + bi
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (t *Terminal) buildStatus(s Stats) string {
	builder := &t.statusBuilder
	builder.Reset()
	builder.Grow(128)
	builder.WriteString("border ")
	appendFloat(builder, s.Display.BorderWidth, 0)
	builder.WriteString(" curve ")
	appendFloat(builder, s.Display.Curve, 2)
	builder.WriteString(" sat ")
	appendFloat(builder, s.Display.Saturation, 2)
	builder.WriteString(" con ")
	appendFloat(builder, s.Display.Contrast, 2)
	builder.WriteString(" bri ")
	appendFloat(builder, s.Display.Brightness, 2)
	builder.WriteString(" | fps ")
	appendFloat(builder, s.FPS, 1)
	if s.Dropped > 0 {
		builder.WriteString(" dropped ")
		builder.WriteString(strconv.FormatUint(s.Dropped, 10))
	}
	if s.Skipped > 0 {
		builder.WriteString(" skipped ")
		builder.WriteString(strconv.FormatUint(s.Skipped, 10))
	}
	return builder.String()
}

func appendFloat(builder *strings.Builder, value float64, precision int) {
	var buf [32]byte
	b := strconv.AppendFloat(buf[:0], value, 'f', precision, 64)
	builder.Write(b)
}
