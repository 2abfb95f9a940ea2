package observ

import (
	"fmt"
	"time"
)

// Stage records the duration and metadata of one stage of a profiling
// run: topology load, trace ingestion, a view build.
type Stage struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
}

// Timer tracks the wall time of the stages of a profiling run.
type Timer struct {
	stages []Stage
}

// NewTimer creates a new empty Timer.
func NewTimer() *Timer { return &Timer{stages: make([]Stage, 0, 8)} }

// Begin starts a new stage and returns its index.
func (t *Timer) Begin(name string) int {
	t.stages = append(t.stages, Stage{Name: name, Start: time.Now()})
	return len(t.stages) - 1
}

// End finishes a stage by its index.
func (t *Timer) End(idx int, note string) {
	if idx < 0 || idx >= len(t.stages) {
		return
	}
	s := &t.stages[idx]
	s.Dur = time.Since(s.Start)
	s.Note = note
}

// Track starts a stage and returns the closure that finishes it.
func (t *Timer) Track(name string) func(note string) {
	idx := t.Begin(name)
	return func(note string) { t.End(idx, note) }
}

// Summary returns a human-readable string summarizing all tracked stages.
func (t *Timer) Summary() string {
	report := t.Report()
	out := "timings:\n"
	for _, s := range report.Stages {
		out += fmt.Sprintf("  %-20s %7.2f ms", s.Name, s.DurationMS)
		if s.Note != "" {
			out += "  // " + s.Note
		}
		out += "\n"
	}
	out += fmt.Sprintf("  %-20s %7.2f ms\n", "total", report.TotalMS)
	return out
}

// StageReport представляет сжатую информацию о стадии таймера для сериализации.
type StageReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// Report описывает агрегированные данные таймера.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Stages  []StageReport `json:"stages"`
}

// Report формирует срез стадий и общую длительность в миллисекундах.
func (t *Timer) Report() Report {
	if len(t.stages) == 0 {
		return Report{}
	}
	report := Report{
		Stages: make([]StageReport, len(t.stages)),
	}
	var total time.Duration
	for i, stage := range t.stages {
		total += stage.Dur
		report.Stages[i] = StageReport{
			Name:       stage.Name,
			DurationMS: durationToMillis(stage.Dur),
			Note:       stage.Note,
		}
	}
	report.TotalMS = durationToMillis(total)
	return report
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
