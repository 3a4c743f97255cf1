package app

import (
	"context"
	"sync"

	"github.com/eiannone/keyboard"
	"github.com/guidoenr/spectrefx/internal/surface"
)

// startInputListener relays terminal key presses to the surface. Terminals
// report no releases, so every event is a press. Ctrl-C quits.
func (a *App) startInputListener(ctx context.Context) {
	if err := keyboard.Open(); err != nil {
		a.log.Printf("keyboard input disabled: %v", err)
		return
	}

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = keyboard.Close()
		})
	}()

	go func() {
		defer closeOnce.Do(func() {
			_ = keyboard.Close()
		})
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			if key == keyboard.KeyCtrlC {
				a.Quit()
				return
			}
			a.surface.HandleKey(translateKey(char, key))
		}
	}()
}

func translateKey(char rune, key keyboard.Key) surface.KeyEvent {
	if char == 0 {
		switch key {
		case keyboard.KeySpace:
			char = ' '
		case keyboard.KeyEnter:
			char = '\r'
		case keyboard.KeyBackspace, keyboard.KeyBackspace2:
			char = '\b'
		}
	}
	return surface.KeyEvent{
		Code:    uint32(key),
		Rune:    char,
		Pressed: true,
	}
}
