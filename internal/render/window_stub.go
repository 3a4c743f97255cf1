//go:build !sdl

package render

import (
	"errors"

	"github.com/guidoenr/spectrefx/internal/surface"
)

// ErrWindowUnavailable is returned by NewWindow in builds without SDL.
var ErrWindowUnavailable = errors.New("SDL window not enabled; rebuild with -tags sdl")

// Window is unavailable without the sdl build tag.
type Window struct{}

func NewWindow(s *surface.Surface, title string, width, height int) (*Window, error) {
	return nil, ErrWindowUnavailable
}

func (w *Window) Present(status string) error { return ErrPresenterQuit }

func (w *Window) Close() error { return nil }

func SupportsWindow() bool { return false }
