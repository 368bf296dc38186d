// Package telemetry provides an engine module that counts frames and fixed
// steps and periodically reports frame statistics.
package telemetry

import (
	"context"
	"math"
	"sync"
	"time"

	"neocore/internal/engine"
	"neocore/logging"
)

const ModuleID = "telemetry"

// EventFrameStats is published once per report period.
const EventFrameStats logging.EventType = "telemetry.frame_stats"

const (
	defaultPeriod = time.Second

	framesMetricKey     = "telemetry_frames_total"
	fixedStepsMetricKey = "telemetry_fixed_steps_total"
	clampedMetricKey    = "telemetry_clamped_frames_total"
	fpsMetricKey        = "telemetry_fps_milli"
	dtMetricKey         = "telemetry_dt_us"
)

// Settings is the module's configuration subtree.
type Settings struct {
	PeriodMillis    int `yaml:"period_ms"`
	MaxCatchupSteps int `yaml:"max_catchup_steps"`
}

// Stats is the payload of EventFrameStats.
type Stats struct {
	Frames     uint64  `json:"frames"`
	FixedSteps uint64  `json:"fixedSteps"`
	Clamped    uint64  `json:"clamped"`
	FPS        float64 `json:"fps"`
	DT         float64 `json:"dt"`
	Alpha      float64 `json:"alpha"`
}

// Module is safe to read from other goroutines through Snapshot.
type Module[E any] struct {
	settings Settings
	period   time.Duration
	task     engine.TaskID

	// Captured at Start; report runs from the scheduler without a context.
	services engine.Services
	source   logging.SourceRef

	mu          sync.Mutex
	stats       Stats
	frame       uint64
	windowFrame uint64
	windowTime  float64
}

func New[E any](settings Settings) *Module[E] {
	return &Module[E]{settings: settings}
}

func (m *Module[E]) ID() string { return ModuleID }

// Init merges the module settings subtree over the constructor values.
func (m *Module[E]) Init(ctx *engine.Context[E]) error {
	if ctx.Settings().Present() {
		if err := ctx.Settings().Decode(&m.settings); err != nil {
			return err
		}
	}
	m.period = time.Duration(m.settings.PeriodMillis) * time.Millisecond
	if m.period <= 0 {
		m.period = defaultPeriod
	}
	if m.settings.MaxCatchupSteps <= 0 {
		m.settings.MaxCatchupSteps = engine.DefaultMaxCatchupSteps
	}
	return nil
}

func (m *Module[E]) Start(ctx *engine.Context[E]) error {
	m.services = ctx.Services()
	m.source = logging.Module(ctx.ModuleID())
	m.task = ctx.Scheduler().Every(m.period, m.report)
	return nil
}

func (m *Module[E]) Update(ctx *engine.Context[E]) error {
	frame := ctx.Frame()
	m.mu.Lock()
	m.stats.Frames++
	m.frame = frame.Index
	m.stats.FixedSteps += uint64(frame.FixedSteps)
	m.stats.DT = frame.DT
	m.stats.Alpha = frame.FixedAlpha
	m.windowTime += frame.DT
	clamped := m.clamped(frame)
	if clamped {
		m.stats.Clamped++
	}
	m.mu.Unlock()

	metrics := ctx.Services().Metrics
	metrics.Add(framesMetricKey, 1)
	metrics.Add(fixedStepsMetricKey, uint64(frame.FixedSteps))
	if clamped {
		metrics.Add(clampedMetricKey, 1)
	}
	metrics.Store(dtMetricKey, uint64(math.Max(frame.DT, 0)*1e6))
	return nil
}

// clamped reports a frame whose elapsed time exceeded the catch-up window,
// which is when the engine discards accumulated time.
func (m *Module[E]) clamped(frame engine.Frame) bool {
	if frame.FixedDT <= 0 {
		return false
	}
	return frame.DT > frame.FixedDT*float64(m.settings.MaxCatchupSteps)
}

func (m *Module[E]) report() {
	m.mu.Lock()
	frames := m.stats.Frames - m.windowFrame
	if m.windowTime > 0 {
		m.stats.FPS = float64(frames) / m.windowTime
	}
	m.windowFrame = m.stats.Frames
	m.windowTime = 0
	stats := m.stats
	frame := m.frame
	m.mu.Unlock()

	m.services.Metrics.Store(fpsMetricKey, uint64(stats.FPS*1000))
	m.services.Publisher.Publish(context.Background(), logging.Event{
		Type:     EventFrameStats,
		Frame:    frame,
		Source:   m.source,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryTelemetry,
		Payload:  stats,
	})
}

func (m *Module[E]) Shutdown(ctx *engine.Context[E]) error {
	ctx.Scheduler().Cancel(m.task)
	return nil
}

// Snapshot copies the current counters.
func (m *Module[E]) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
