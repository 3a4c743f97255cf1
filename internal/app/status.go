package app

import (
	"github.com/guidoenr/spectrefx/internal/analyzer"
	"github.com/guidoenr/spectrefx/internal/audio"
	"github.com/guidoenr/spectrefx/internal/params"
	"github.com/guidoenr/spectrefx/internal/surface"
)

// Status is a point-in-time view of the runtime for the settings surface.
type Status struct {
	FPS           float64           `json:"fps"`
	Frames        uint64            `json:"frames"`
	DroppedFrames uint64            `json:"droppedFrames"`
	SkippedFrames uint64            `json:"skippedFrames"`
	Placement     surface.Placement `json:"placement"`
	Display       params.Display    `json:"display"`
	Sound         params.Sound      `json:"sound"`
	Audio         *AudioStatus      `json:"audio,omitempty"`
}

// AudioStatus describes the audio side when it runs.
type AudioStatus struct {
	Backend        string          `json:"backend"`
	SampleRate     float64         `json:"sampleRate"`
	Stats          audio.Stats     `json:"stats"`
	Levels         analyzer.Levels `json:"levels"`
	PeakDB         float64         `json:"peakDb"`
	MeterSkipped   uint64          `json:"meterSkipped"`
	RecordedFrames uint64          `json:"recordedFrames,omitempty"`
	RecordDropped  uint64          `json:"recordDropped,omitempty"`
}

// Status returns the current runtime status. It is safe to call from any
// goroutine.
func (a *App) Status() Status {
	s := Status{
		FPS:           a.FPS(),
		Frames:        a.frames.Load(),
		DroppedFrames: a.dropped.Load(),
		SkippedFrames: a.skipped.Load(),
		Placement:     a.surface.Placement(),
		Display:       a.store.SnapshotDisplay(),
		Sound:         a.store.SnapshotSound(),
	}
	a.audioMu.RLock()
	defer a.audioMu.RUnlock()
	if a.pipeline == nil {
		return s
	}
	as := &AudioStatus{
		Backend:    a.backend,
		SampleRate: a.pipeline.SampleRate(),
		Stats:      a.pipeline.Stats(),
	}
	if l := a.levels.Load(); l != nil {
		as.Levels = *l
		as.PeakDB = analyzer.Decibels(l.Peak)
	}
	if a.meter != nil {
		as.MeterSkipped = a.meter.Skipped()
	}
	if rec := a.recorder; rec != nil {
		as.RecordedFrames = rec.Frames()
		as.RecordDropped = rec.Dropped()
	}
	s.Audio = as
	return s
}
