// Package surface hosts the processed framebuffer inside a resizable
// viewport and relays keyboard events to the emulation side.
package surface

import (
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"
)

// Placement is where the framebuffer lands in the viewport.
type Placement struct {
	Scale       float64         `json:"scale"`
	Rect        image.Rectangle `json:"rect"`
	ViewWidth   int             `json:"viewWidth"`
	ViewHeight  int             `json:"viewHeight"`
	FrameWidth  int             `json:"frameWidth"`
	FrameHeight int             `json:"frameHeight"`
}

// ComputePlacement returns the largest uniform scale at which a frame of
// frameW x frameH fits inside viewW x viewH, centred. Negative sizes count
// as zero; any zero dimension yields a zero scale and an empty rectangle at
// the viewport centre.
func ComputePlacement(frameW, frameH, viewW, viewH int) Placement {
	frameW, frameH = max(frameW, 0), max(frameH, 0)
	viewW, viewH = max(viewW, 0), max(viewH, 0)

	p := Placement{
		ViewWidth:   viewW,
		ViewHeight:  viewH,
		FrameWidth:  frameW,
		FrameHeight: frameH,
	}
	if frameW == 0 || frameH == 0 || viewW == 0 || viewH == 0 {
		c := image.Pt(viewW/2, viewH/2)
		p.Rect = image.Rectangle{Min: c, Max: c}
		return p
	}

	scale := math.Min(float64(viewW)/float64(frameW), float64(viewH)/float64(frameH))
	w := min(int(math.Round(float64(frameW)*scale)), viewW)
	h := min(int(math.Round(float64(frameH)*scale)), viewH)
	x := (viewW - w) / 2
	y := (viewH - h) / 2

	p.Scale = scale
	p.Rect = image.Rect(x, y, x+w, y+h)
	return p
}

// KeyEvent is a keyboard event as delivered by the windowing layer. It is
// relayed without interpretation.
type KeyEvent struct {
	Code    uint32 `json:"code"`
	Rune    rune   `json:"rune"`
	Pressed bool   `json:"pressed"`
	Repeat  bool   `json:"repeat"`
	Mod     uint16 `json:"mod"`
}

// KeyListener receives relayed keyboard events.
type KeyListener interface {
	HandleKey(KeyEvent)
}

// KeyListenerFunc adapts a function to KeyListener.
type KeyListenerFunc func(KeyEvent)

// HandleKey calls f(ev).
func (f KeyListenerFunc) HandleKey(ev KeyEvent) { f(ev) }

type listenerBox struct {
	l KeyListener
}

// Surface owns the framebuffer texture and its placement.
type Surface struct {
	mu        sync.Mutex
	frame     *image.RGBA
	viewW     int
	viewH     int
	placement atomic.Pointer[Placement]
	listener  atomic.Pointer[listenerBox]
	clear     color.RGBA
}

// New creates a surface with an initial viewport.
func New(viewW, viewH int) *Surface {
	s := &Surface{
		viewW: max(viewW, 0),
		viewH: max(viewH, 0),
		clear: color.RGBA{A: 0xff},
	}
	p := ComputePlacement(0, 0, s.viewW, s.viewH)
	s.placement.Store(&p)
	return s
}

// OnViewportResized recomputes the placement for a new viewport size.
// Repeating the call with the same size leaves the placement unchanged.
func (s *Surface) OnViewportResized(width, height int) Placement {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewW = max(width, 0)
	s.viewH = max(height, 0)
	return s.updateLocked()
}

// Present installs a newly processed frame. The placement is recomputed
// when the frame size differs from the previous one.
func (s *Surface) Present(frame *image.RGBA) Placement {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
	return s.updateLocked()
}

func (s *Surface) updateLocked() Placement {
	fw, fh := 0, 0
	if s.frame != nil {
		fw, fh = s.frame.Bounds().Dx(), s.frame.Bounds().Dy()
	}
	p := ComputePlacement(fw, fh, s.viewW, s.viewH)
	s.placement.Store(&p)
	return p
}

// Placement returns the current placement.
func (s *Surface) Placement() Placement {
	return *s.placement.Load()
}

// Frame returns the latest presented frame, or nil.
func (s *Surface) Frame() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Compose draws the current frame letterboxed into dst, scaled to the
// placement computed for dst's size. Areas outside the frame are cleared.
func (s *Surface) Compose(dst *image.RGBA) Placement {
	frame := s.Frame()
	b := dst.Bounds()
	fw, fh := 0, 0
	if frame != nil {
		fw, fh = frame.Bounds().Dx(), frame.Bounds().Dy()
	}
	p := ComputePlacement(fw, fh, b.Dx(), b.Dy())

	draw.Draw(dst, b, image.NewUniform(s.clear), image.Point{}, draw.Src)
	if frame != nil && !p.Rect.Empty() {
		draw.NearestNeighbor.Scale(dst, p.Rect.Add(b.Min), frame, frame.Bounds(), draw.Src, nil)
	}
	return p
}

// Snapshot composes the current frame at the viewport size.
func (s *Surface) Snapshot() *image.RGBA {
	p := s.Placement()
	img := image.NewRGBA(image.Rect(0, 0, p.ViewWidth, p.ViewHeight))
	s.Compose(img)
	return img
}

// SetInputListener registers the single keyboard listener. Passing nil
// removes it.
func (s *Surface) SetInputListener(l KeyListener) {
	if l == nil {
		s.listener.Store(nil)
		return
	}
	s.listener.Store(&listenerBox{l: l})
}

// HandleKey forwards ev to the registered listener, if any. Without a
// listener the event is dropped.
func (s *Surface) HandleKey(ev KeyEvent) {
	box := s.listener.Load()
	if box == nil {
		return
	}
	box.l.HandleKey(ev)
}
