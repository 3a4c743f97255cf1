package app

import (
	"encoding/csv"
	"log"
	"os"
	"strconv"
	"sync"
	"time"
)

// profiler appends one CSV row per frame section: the frame sequence, the
// section name and its duration in milliseconds.
type profiler struct {
	mu     sync.Mutex
	file   *os.File
	w      *csv.Writer
	logger *log.Logger
	start  time.Time
	last   time.Time
	rows   [][2]string
}

func newProfiler(path string, logger *log.Logger) *profiler {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		if logger != nil {
			logger.Printf("profiler disabled: %v", err)
		}
		return nil
	}
	p := &profiler{
		file:   f,
		w:      csv.NewWriter(f),
		logger: logger,
	}
	p.w.Write([]string{"timestamp", "frame", "section", "ms"})
	return p
}

func (p *profiler) beginFrame() {
	if p == nil {
		return
	}
	now := time.Now()
	p.start = now
	p.last = now
	p.rows = p.rows[:0]
}

func (p *profiler) markSection(name string) {
	if p == nil {
		return
	}
	now := time.Now()
	p.rows = append(p.rows, [2]string{name, formatMs(now.Sub(p.last))})
	p.last = now
}

// endFrame writes the sections collected since beginFrame plus the total.
func (p *profiler) endFrame(seq uint64) {
	if p == nil {
		return
	}
	p.rows = append(p.rows, [2]string{"total", formatMs(time.Since(p.start))})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return
	}
	ts := p.start.Format(time.RFC3339Nano)
	frame := strconv.FormatUint(seq, 10)
	for _, row := range p.rows {
		p.w.Write([]string{ts, frame, row[0], row[1]})
	}
	p.w.Flush()
	if err := p.w.Error(); err != nil && p.logger != nil {
		p.logger.Printf("profiler write: %v", err)
	}
}

func (p *profiler) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	p.w.Flush()
	err := p.file.Close()
	p.file = nil
	return err
}

func formatMs(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds()*1000, 'f', 3, 64)
}
