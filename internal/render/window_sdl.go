//go:build sdl

package render

import (
	"fmt"
	"image"

	"github.com/guidoenr/spectrefx/internal/surface"
	"github.com/veandco/go-sdl2/sdl"
)

// Window presents frames in an SDL window and feeds window events back to
// the surface.
type Window struct {
	surface     *surface.Surface
	initialized bool
	window      *sdl.Window
	renderer    *sdl.Renderer
	texture     *sdl.Texture
	width       int
	height      int
	windowTitle string
}

// NewWindow opens a resizable window of the given size.
func NewWindow(s *surface.Surface, title string, width, height int) (*Window, error) {
	if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
		return nil, err
	}
	w := &Window{surface: s, initialized: true}

	window, err := sdl.CreateWindow(
		title,
		sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		int32(width), int32(height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE,
	)
	if err != nil {
		w.Close()
		return nil, err
	}
	w.window = window
	w.windowTitle = title

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		w.Close()
		return nil, err
	}
	w.renderer = renderer

	ww, wh := window.GetSize()
	s.OnViewportResized(int(ww), int(wh))
	return w, nil
}

func (w *Window) ensureTexture(width, height int) error {
	if w.texture != nil && w.width == width && w.height == height {
		return nil
	}
	if w.texture != nil {
		w.texture.Destroy()
		w.texture = nil
	}
	tex, err := w.renderer.CreateTexture(
		sdl.PIXELFORMAT_ABGR8888,
		sdl.TEXTUREACCESS_STREAMING,
		int32(width), int32(height),
	)
	if err != nil {
		return err
	}
	w.texture = tex
	w.width = width
	w.height = height
	return nil
}

// Present uploads the surface's current frame at its placement and pumps
// pending window events. It returns ErrPresenterQuit when the window is
// closed.
func (w *Window) Present(status string) error {
	if err := w.pollEvents(); err != nil {
		return err
	}

	frame := w.surface.Frame()
	placement := w.surface.Placement()
	if err := w.renderer.SetDrawColor(0, 0, 0, 255); err != nil {
		return err
	}
	if err := w.renderer.Clear(); err != nil {
		return err
	}
	if frame != nil && !placement.Rect.Empty() {
		b := frame.Bounds()
		if err := w.ensureTexture(b.Dx(), b.Dy()); err != nil {
			return fmt.Errorf("texture: %w", err)
		}
		if err := w.texture.Update(nil, frame.Pix, frame.Stride); err != nil {
			return err
		}
		if err := w.renderer.Copy(w.texture, nil, sdlRect(placement.Rect)); err != nil {
			return err
		}
	}
	w.renderer.Present()

	if status != "" && status != w.windowTitle {
		w.window.SetTitle(status)
		w.windowTitle = status
	}
	return nil
}

func (w *Window) pollEvents() error {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch ev := event.(type) {
		case *sdl.QuitEvent:
			return ErrPresenterQuit
		case *sdl.WindowEvent:
			if ev.Event == sdl.WINDOWEVENT_SIZE_CHANGED || ev.Event == sdl.WINDOWEVENT_RESIZED {
				w.surface.OnViewportResized(int(ev.Data1), int(ev.Data2))
			}
		case *sdl.KeyboardEvent:
			w.surface.HandleKey(surface.KeyEvent{
				Code:    uint32(ev.Keysym.Sym),
				Rune:    keyRune(ev.Keysym.Sym),
				Pressed: ev.Type == sdl.KEYDOWN,
				Repeat:  ev.Repeat != 0,
				Mod:     ev.Keysym.Mod,
			})
		}
	}
	return nil
}

func keyRune(k sdl.Keycode) rune {
	if k >= 0x20 && k < 0x7f {
		return rune(k)
	}
	return 0
}

func sdlRect(r image.Rectangle) *sdl.Rect {
	return &sdl.Rect{X: int32(r.Min.X), Y: int32(r.Min.Y), W: int32(r.Dx()), H: int32(r.Dy())}
}

// Close releases the window.
func (w *Window) Close() error {
	if w.texture != nil {
		w.texture.Destroy()
		w.texture = nil
	}
	if w.renderer != nil {
		w.renderer.Destroy()
		w.renderer = nil
	}
	if w.window != nil {
		w.window.Destroy()
		w.window = nil
	}
	if w.initialized {
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		w.initialized = false
	}
	return nil
}

// SupportsWindow reports whether this build can open a window.
func SupportsWindow() bool { return true }
