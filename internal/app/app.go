package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"math"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guidoenr/spectrefx/internal/analyzer"
	"github.com/guidoenr/spectrefx/internal/audio"
	"github.com/guidoenr/spectrefx/internal/core"
	"github.com/guidoenr/spectrefx/internal/params"
	"github.com/guidoenr/spectrefx/internal/recorder"
	"github.com/guidoenr/spectrefx/internal/render"
	"github.com/guidoenr/spectrefx/internal/surface"
	"golang.org/x/term"
)

const defaultSampleRate = 48_000

// Config configures the application runtime.
type Config struct {
	TargetFPS     float64
	Workers       int
	Width         int
	Height        int
	Palette       string
	UseANSI       bool
	ShowStatusBar bool
	// Window presents in an SDL window instead of the terminal.
	Window      bool
	WindowScale int

	DisableAudio bool
	AudioBackend string
	AudioDevice  string
	BlockSize    int
	RecordPath   string
	ProfilePath  string

	// Initial parameter values, applied over the defaults.
	Initial map[params.ID]float64

	Log    *log.Logger
	Output io.Writer
}

// App ties the emulation core to the post-processing stages and the
// presenters.
type App struct {
	cfg Config
	log *log.Logger
	out *bufio.Writer

	store   *params.Store
	synth   *core.Synthetic
	video   core.VideoSource
	proc    *render.Processor
	surface *surface.Surface
	term    *render.Terminal
	window  *render.Window
	view    *image.RGBA

	// audioMu guards the audio fields against Close while Status reads them
	audioMu    sync.RWMutex
	pipeline   *audio.Pipeline
	sink       audio.Sink
	backend    string
	meter      *analyzer.Tap
	recorder   *recorder.WAV
	portaudio  bool
	profiler   *profiler
	lastSeq    uint64
	last       time.Time
	interval   time.Duration
	quit       chan struct{}
	levels     atomic.Pointer[analyzer.Levels]
	fpsBits    atomic.Uint64
	frames     atomic.Uint64
	dropped    atomic.Uint64
	skipped    atomic.Uint64
	termWidth  int
	termHeight int
}

// New constructs the application using the provided configuration.
func New(cfg Config) (*App, error) {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stdout, "", log.LstdFlags)
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Width <= 0 {
		cfg.Width = 80
	}
	if cfg.Height <= 0 {
		cfg.Height = 24
	}
	if cfg.WindowScale <= 0 {
		cfg.WindowScale = 2
	}
	if cfg.AudioBackend == "" {
		cfg.AudioBackend = audio.BackendPortAudio
	}
	cfg.AudioBackend = strings.ToLower(cfg.AudioBackend)

	a := &App{
		cfg:      cfg,
		log:      cfg.Log,
		out:      bufio.NewWriterSize(cfg.Output, 64*1024),
		proc:     render.NewProcessor(cfg.Workers),
		interval: time.Duration(float64(time.Second) / cfg.TargetFPS),
		quit:     make(chan struct{}),
	}

	rate := float64(defaultSampleRate)
	if !cfg.DisableAudio && cfg.AudioBackend == audio.BackendPortAudio {
		if err := audio.Initialize(); err != nil {
			return nil, fmt.Errorf("initialize portaudio: %w", err)
		}
		a.portaudio = true
		deviceRate, err := audio.DeviceSampleRate(cfg.AudioDevice)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("audio device: %w", err)
		}
		rate = deviceRate
	}

	a.synth = core.NewSynthetic(rate)
	a.video = a.synth

	a.store = params.NewStore(params.Limits{
		MaxBorder:  float64(a.video.MaxBorder()),
		SampleRate: rate,
	})
	if len(cfg.Initial) > 0 {
		if _, err := a.store.Apply(cfg.Initial); err != nil {
			a.Close()
			return nil, fmt.Errorf("initial parameters: %w", err)
		}
	}
	a.surface = surface.New(0, 0)
	a.surface.SetInputListener(surface.KeyListenerFunc(func(ev surface.KeyEvent) {
		a.synth.KeyEvent(ev.Code, ev.Rune, ev.Pressed)
	}))

	if cfg.Window {
		fw := (core.ActiveWidth + 2*core.BorderSize) * cfg.WindowScale
		fh := (core.ActiveHeight + 2*core.BorderSize) * cfg.WindowScale
		window, err := render.NewWindow(a.surface, "spectrefx", fw, fh)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("window: %w", err)
		}
		a.window = window
	} else {
		a.termWidth, a.termHeight = cfg.Width, cfg.Height
		t, err := render.NewTerminal(cfg.Width, a.renderRows(cfg.Height), cfg.Palette, cfg.UseANSI)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.term = t
		a.surface.OnViewportResized(t.PixelSize())
	}

	if err := a.startAudio(rate); err != nil {
		a.Close()
		return nil, err
	}

	a.profiler = newProfiler(cfg.ProfilePath, a.log)
	return a, nil
}

func (a *App) startAudio(rate float64) error {
	if a.cfg.DisableAudio {
		if a.cfg.RecordPath != "" {
			return errors.New("recording needs audio; drop -no-audio or use -audio-backend null")
		}
		a.log.Println("audio disabled")
		return nil
	}

	a.pipeline = audio.NewPipeline(a.synth, a.store)
	a.meter = analyzer.NewTap(analyzer.New(analyzer.Config{SampleRate: rate}))
	a.pipeline.AddTap(a.meter)

	if a.cfg.RecordPath != "" {
		rec, err := recorder.Create(recorder.Config{
			Path:       a.cfg.RecordPath,
			SampleRate: int(math.Round(rate)),
			Channels:   a.pipeline.Channels(),
			Log:        a.log,
		})
		if err != nil {
			return err
		}
		a.recorder = rec
		a.pipeline.AddTap(rec)
	}

	sink, err := audio.Open(a.cfg.AudioBackend, audio.Config{
		DeviceName: a.cfg.AudioDevice,
		BlockSize:  a.cfg.BlockSize,
	}, a.pipeline)
	if err != nil {
		return fmt.Errorf("audio output: %w", err)
	}
	a.sink = sink
	a.backend = a.cfg.AudioBackend
	a.followSampleRate(sink.SampleRate())
	if pb, ok := sink.(*audio.Playback); ok && pb.Device() != nil {
		a.log.Printf("audio output started on \"%s\" @ %.0f Hz", pb.Device().Name, sink.SampleRate())
	} else {
		a.log.Printf("audio output (%s) started @ %.0f Hz", a.backend, sink.SampleRate())
	}
	return nil
}

// Store returns the parameter store.
func (a *App) Store() *params.Store { return a.store }

// Surface returns the render surface.
func (a *App) Surface() *surface.Surface { return a.surface }

// Run starts the display cadence until context cancellation or a quit key.
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	if a.term != nil {
		enterAltScreen(a.out)
		clearScreen(a.out)
		hideCursor(a.out)
		a.out.Flush()
		defer func() {
			showCursor(a.out)
			exitAltScreen(a.out)
			a.out.Flush()
		}()

		inputCtx, cancelInput := context.WithCancel(ctx)
		defer cancelInput()
		a.startInputListener(inputCtx)
	}

	a.last = time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.quit:
			return nil
		case now := <-ticker.C:
			a.countLate(now)
			if err := a.step(); err != nil {
				if errors.Is(err, render.ErrPresenterQuit) {
					return nil
				}
				return err
			}
		}
	}
}

// countLate records ticks that passed while the previous frame was still
// being produced. time.Ticker already drops them; they are counted here.
func (a *App) countLate(now time.Time) {
	if a.last.IsZero() {
		a.last = now
		return
	}
	elapsed := now.Sub(a.last)
	if missed := int64(elapsed/a.interval) - 1; missed > 0 {
		a.dropped.Add(uint64(missed))
	}
	if elapsed > 0 {
		fps := float64(time.Second) / float64(elapsed)
		prev := math.Float64frombits(a.fpsBits.Load())
		if prev > 0 {
			fps = prev*0.9 + fps*0.1
		}
		a.fpsBits.Store(math.Float64bits(fps))
	}
	a.last = now
}

// step produces and presents one frame with one display snapshot.
func (a *App) step() error {
	a.profiler.beginFrame()

	fb, ok := a.video.Frame()
	if ok && fb.Sequence != a.lastSeq {
		a.lastSeq = fb.Sequence
		if fb.Valid() {
			a.followMaxBorder(fb.MaxBorder())
		}
		display := a.store.SnapshotDisplay()
		img, err := a.proc.Process(fb, display)
		switch {
		case errors.Is(err, render.ErrInvalidFrame):
			a.skipped.Add(1)
		case err != nil:
			return err
		default:
			a.surface.Present(img)
			a.frames.Add(1)
		}
	}
	a.profiler.markSection("process")

	if a.meter != nil {
		levels := a.meter.Levels()
		a.levels.Store(&levels)
	}

	var err error
	if a.window != nil {
		err = a.window.Present(a.statusText())
	} else {
		err = a.presentTerminal()
	}
	a.profiler.markSection("present")
	a.profiler.endFrame(a.lastSeq)
	return err
}

// followMaxBorder re-derives the border range when the core reports a
// different maximum; a border above it is clamped down and published.
func (a *App) followMaxBorder(maxBorder int) {
	l := a.store.Limits()
	if float64(maxBorder) == l.MaxBorder {
		return
	}
	l.MaxBorder = float64(maxBorder)
	if changes := a.store.SetLimits(l); len(changes) > 0 {
		a.log.Printf("core max border now %d, %d parameter(s) re-clamped", maxBorder, len(changes))
	}
}

// followSampleRate re-derives the filter ranges for the rate the output
// actually runs at.
func (a *App) followSampleRate(rate float64) {
	l := a.store.Limits()
	if rate <= 0 || rate == l.SampleRate {
		return
	}
	l.SampleRate = rate
	a.store.SetLimits(l)
}

func (a *App) presentTerminal() error {
	a.ensureDimensions()

	w, h := a.term.PixelSize()
	if a.view == nil || a.view.Bounds().Dx() != w || a.view.Bounds().Dy() != h {
		a.view = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	a.surface.Compose(a.view)

	frame := a.term.Render(a.view, render.Stats{
		FPS:     a.FPS(),
		Dropped: a.dropped.Load(),
		Skipped: a.skipped.Load(),
		Display: a.store.SnapshotDisplay(),
	})

	moveCursorHome(a.out)
	for _, line := range frame.Lines {
		a.out.WriteString(line)
		a.out.WriteByte('\n')
	}
	if a.cfg.ShowStatusBar {
		a.out.WriteString(statusBar(frame.Status+a.audioStatus(), a.termWidth))
	}
	return a.out.Flush()
}

func (a *App) renderRows(height int) int {
	if a.cfg.ShowStatusBar && height > 1 {
		return height - 1
	}
	return height
}

// ensureDimensions follows the terminal size and feeds it to the surface.
func (a *App) ensureDimensions() {
	f, ok := a.cfg.Output.(*os.File)
	if !ok {
		return
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return
	}
	if w == a.termWidth && h == a.termHeight {
		return
	}
	a.termWidth, a.termHeight = w, h
	a.term.Resize(w, max(a.renderRows(h), 1))
	a.surface.OnViewportResized(a.term.PixelSize())
}

func (a *App) statusText() string {
	d := a.store.SnapshotDisplay()
	return fmt.Sprintf("spectrefx | fps %.1f | border %.0f curve %.2f%s",
		a.FPS(), d.BorderWidth, d.Curve, a.audioStatus())
}

func (a *App) audioStatus() string {
	if a.pipeline == nil {
		return ""
	}
	snd := a.store.SnapshotSound()
	var b strings.Builder
	fmt.Fprintf(&b, " | vol %.2f hp %.0f lp %.0f", snd.Volume, snd.HighPassFilter, snd.LowPassFilter)
	if l := a.levels.Load(); l != nil {
		fmt.Fprintf(&b, " | %.0f dB", analyzer.Decibels(l.Peak))
	}
	if a.recorder != nil {
		b.WriteString(" | rec")
	}
	return b.String()
}

// FPS returns the smoothed display rate.
func (a *App) FPS() float64 { return math.Float64frombits(a.fpsBits.Load()) }

// Quit asks Run to return.
func (a *App) Quit() {
	select {
	case <-a.quit:
	default:
		close(a.quit)
	}
}

// Close releases held resources. The sink stops first so no tap is written
// after its owner closes.
func (a *App) Close() error {
	var errs []error
	a.audioMu.Lock()
	if a.sink != nil {
		errs = append(errs, a.sink.Close())
		a.sink = nil
	}
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close())
		a.recorder = nil
	}
	a.pipeline = nil
	a.meter = nil
	a.audioMu.Unlock()
	if a.window != nil {
		errs = append(errs, a.window.Close())
		a.window = nil
	}
	if a.profiler != nil {
		errs = append(errs, a.profiler.Close())
		a.profiler = nil
	}
	if a.portaudio {
		audio.Terminate()
		a.portaudio = false
	}
	return errors.Join(errs...)
}

func statusBar(text string, width int) string {
	if width <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) >= width {
		return string(runes[:width])
	}
	return text + strings.Repeat(" ", width-len(runes))
}

func clearScreen(w io.Writer) {
	io.WriteString(w, "\x1b[2J")
	moveCursorHome(w)
}

func moveCursorHome(w io.Writer) {
	io.WriteString(w, "\x1b[H")
}

func hideCursor(w io.Writer) {
	io.WriteString(w, "\x1b[?25l")
}

func showCursor(w io.Writer) {
	io.WriteString(w, "\x1b[?25h")
}

func enterAltScreen(w io.Writer) {
	io.WriteString(w, "\x1b[?1049h")
}

func exitAltScreen(w io.Writer) {
	io.WriteString(w, "\x1b[?1049l\x1b[0m")
}
