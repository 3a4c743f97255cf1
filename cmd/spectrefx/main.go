package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guidoenr/spectrefx/internal/app"
	"github.com/guidoenr/spectrefx/internal/audio"
	"github.com/guidoenr/spectrefx/internal/params"
	"github.com/guidoenr/spectrefx/internal/render"
	"github.com/guidoenr/spectrefx/internal/web"
	"golang.org/x/term"
)

func main() {
	var (
		targetFPS   = flag.Float64("fps", 50, "Display refresh rate")
		workers     = flag.Int("workers", 0, "Frame processing workers (0 = GOMAXPROCS)")
		borderWidth = flag.Float64("border", 0, "Border width in pixels")
		curve       = flag.Float64("curve", 0, "Screen curvature (0..1)")
		saturation  = flag.Float64("saturation", 1, "Colour saturation (0..2)")
		contrast    = flag.Float64("contrast", 1, "Contrast (0..2)")
		brightness  = flag.Float64("brightness", 0, "Brightness (-1..1)")
		volume      = flag.Float64("volume", 1, "Output volume (0..1)")
		highPass    = flag.Float64("high-pass", 0, "High-pass cutoff in Hz (0 = off)")
		lowPass     = flag.Float64("low-pass", -1, "Low-pass cutoff in Hz (-1 = Nyquist, off)")
		deviceName  = flag.String("audio-device", "", "Optional PortAudio output device name (substring match)")
		backend     = flag.String("audio-backend", audio.BackendPortAudio, "Audio output (portaudio|oto|null)")
		blockSize   = flag.Int("block-size", 512, "Audio block size in frames")
		noAudio     = flag.Bool("no-audio", false, "Run without audio")
		listDevs    = flag.Bool("list-audio-devices", false, "List available audio output devices and exit")
		webAddr     = flag.String("web", "", "Settings surface address, e.g. :8080 (empty = off)")
		window      = flag.Bool("window", false, "Present in an SDL window (needs -tags sdl)")
		scale       = flag.Int("scale", 2, "Initial window scale")
		recordWAV   = flag.String("record-wav", "", "Record processed audio to a WAV file")
		profilePath = flag.String("profile", "", "Write per-frame timings as CSV")
		palette     = flag.String("palette", "default", "Glyph ramp when colour is off (default|block|ascii)")
		showStatus  = flag.Bool("status", true, "Display status bar")
		noColor     = flag.Bool("no-color", false, "Disable ANSI color output")
		debug       = flag.Bool("debug", false, "Enable verbose logging")
	)

	flag.Parse()

	if *targetFPS <= 0 {
		log.Fatalf("fps must be positive (got %.2f)", *targetFPS)
	}
	if *blockSize <= 0 {
		log.Fatalf("block-size must be positive (got %d)", *blockSize)
	}
	if *window && !render.SupportsWindow() {
		log.Fatalf("this build has no SDL window; rebuild with -tags sdl")
	}

	width, height := 80, 24
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		if w, h, err := term.GetSize(fd); err == nil {
			width, height = w, h
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stderr, "[spectrefx] ", log.LstdFlags)
	if !*debug {
		// the terminal presenter owns stdout; keep quiet unless asked
		logger.SetOutput(io.Discard)
		if *window {
			logger.SetOutput(os.Stderr)
			logger.SetFlags(0)
		}
	}

	if *listDevs {
		listDevices(logger)
		return
	}

	initial := map[params.ID]float64{
		params.BorderWidth:    *borderWidth,
		params.Curve:          *curve,
		params.Saturation:     *saturation,
		params.Contrast:       *contrast,
		params.Brightness:     *brightness,
		params.Volume:         *volume,
		params.HighPassFilter: *highPass,
	}
	if *lowPass >= 0 {
		initial[params.LowPassFilter] = *lowPass
	}

	a, err := app.New(app.Config{
		TargetFPS:     *targetFPS,
		Workers:       *workers,
		Width:         width,
		Height:        height,
		Palette:       *palette,
		UseANSI:       !*noColor,
		ShowStatusBar: *showStatus,
		Window:        *window,
		WindowScale:   *scale,
		DisableAudio:  *noAudio,
		AudioBackend:  *backend,
		AudioDevice:   *deviceName,
		BlockSize:     *blockSize,
		RecordPath:    *recordWAV,
		ProfilePath:   *profilePath,
		Initial:       initial,
		Log:           logger,
	})
	if err != nil {
		log.Fatalf("failed to create app: %v", err)
	}
	// the settings surface reads app status, so it stops before Close
	webDone := make(chan struct{})
	defer func() {
		cancel()
		<-webDone
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup error: %v\n", err)
		}
	}()

	if *webAddr != "" {
		webLog := log.New(logger.Writer(), "[web] ", logger.Flags())
		server := web.NewServer(a, web.Config{Addr: *webAddr, Log: webLog})
		go func() {
			defer close(webDone)
			if err := server.Run(ctx); err != nil {
				logger.Printf("settings surface stopped: %v", err)
			}
		}()
	} else {
		close(webDone)
	}

	if err := a.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Printf("runtime error: %v", err)
		fmt.Fprintf(os.Stderr, "runtime error: %v\n", err)
		return
	}

	time.Sleep(50 * time.Millisecond)
}

func listDevices(logger *log.Logger) {
	if err := audio.Initialize(); err != nil {
		log.Fatalf("failed to initialize PortAudio: %v", err)
	}
	defer audio.Terminate()

	devices, err := audio.ListDevices()
	if err != nil {
		log.Fatalf("list devices: %v", err)
	}
	fmt.Printf("\n=== Audio Output Devices ===\n\n")
	for _, dev := range devices {
		markers := ""
		if dev.IsDefaultOutput {
			markers += " (default)"
		}
		fmt.Printf("- %s [%s]%s\n    outputs:%d sample:%.0f Hz latency:%.1f ms\n",
			dev.Name, dev.HostAPI, markers, dev.MaxOutput, dev.DefaultSampleHz, dev.OutputLatencyMs)
	}
	logger.Printf("%d output devices", len(devices))
}
