// Package engine is the decision core: it reduces raw temperature readings
// to summary statistics, classifies CPU/GPU dominance, applies the overpower
// safety guard and drives the per-host hysteresis evaluator. It never blocks
// and never retries; all I/O lives in the sensor sources and the fan sink.
package engine

import (
	"context"
	"time"

	"codeberg.org/mutker/ipmifanctl/internal/curve"
	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"codeberg.org/mutker/ipmifanctl/internal/logger"
	"codeberg.org/mutker/ipmifanctl/internal/sensor"
	"codeberg.org/mutker/ipmifanctl/internal/telemetry"
)

const defaultWarnWindow = 5 * time.Minute

// Sink accepts the engine's output: one speed percentage per cycle, or a
// hand-off to the hardware's own fan control.
type Sink interface {
	SetSpeed(ctx context.Context, percent float64) error
	SetAutomatic(ctx context.Context) error
}

// HostSettings is the validated, read-only configuration view one
// controller operates under.
type HostSettings struct {
	Name            string
	CPUCurve        curve.Curve
	GPUCurve        curve.Curve
	CPUWeight       float64
	GPUWeight       float64
	DominanceMargin float64
	OverpowerMargin float64
}

// Validate rejects settings the engine cannot safely run with. This runs at
// load time; the per-cycle path assumes validity.
func (s HostSettings) Validate() error {
	errFactory := errors.New()

	if s.Name == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "host has no name")
	}
	if err := s.CPUCurve.Validate(); err != nil {
		return err
	}
	if err := s.GPUCurve.Validate(); err != nil {
		return err
	}
	if s.CPUWeight < 0 || s.CPUWeight > 1 {
		return errFactory.WithData(errors.ErrInvalidWeight, s.CPUWeight)
	}
	if s.GPUWeight < 0 || s.GPUWeight > 1 {
		return errFactory.WithData(errors.ErrInvalidWeight, s.GPUWeight)
	}
	if s.DominanceMargin < 0 || s.OverpowerMargin < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "margins must not be negative")
	}

	return nil
}

// Controller evaluates one host once per polling tick. It exclusively owns
// that host's hysteresis state; controllers for different hosts share
// nothing and may tick concurrently.
type Controller struct {
	settings  HostSettings
	sources   []sensor.Source
	sink      Sink
	agg       *Aggregator
	eval      *curve.Evaluator
	collector telemetry.Collector
	limiter   *warnLimiter
	monitor   bool
}

// NewController wires a controller for one host. collector may be nil when
// telemetry is disabled; monitor suppresses all sink commands.
func NewController(
	settings HostSettings, sources []sensor.Source, sink Sink, collector telemetry.Collector, monitor bool,
) (*Controller, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	limiter := newWarnLimiter(defaultWarnWindow)

	return &Controller{
		settings:  settings,
		sources:   sources,
		sink:      sink,
		agg:       NewAggregator(settings.Name, limiter),
		eval:      curve.NewEvaluator(),
		collector: collector,
		limiter:   limiter,
		monitor:   monitor,
	}, nil
}

// Name returns the controlled host's name.
func (c *Controller) Name() string {
	return c.settings.Name
}

// State exposes the current hysteresis state for diagnostics.
func (c *Controller) State() curve.State {
	return c.eval.State()
}

// Tick runs one full decision cycle: sample, aggregate, classify, guard,
// evaluate, transmit. A cycle without valid CPU data is skipped and leaves
// the hysteresis state untouched so the next successful cycle resumes
// correctly. Sink failures are logged but never unwind the cycle's state.
func (c *Controller) Tick(ctx context.Context) error {
	summary, err := c.agg.Aggregate(c.collect(ctx))
	if err != nil {
		if errors.HasCode(err, errors.ErrNoCPUData) && c.limiter.allow("no_cpu_data") {
			logger.Warn().Str("host", c.settings.Name).Msg("No valid CPU samples; skipping cycle")
		}
		return err
	}

	cl := Classify(summary, c.settings.CPUWeight, c.settings.GPUWeight, c.settings.DominanceMargin)
	active := c.activeCurve(cl.Curve)

	var (
		speed     float64
		overpower bool
		autoMode  bool
	)

	switch {
	case Overpowered(cl, summary, active, c.settings.OverpowerMargin):
		overpower = true
		speed = c.eval.ForceMax(active, cl.Curve)
		c.transmitSpeed(ctx, speed)
	case cl.Effective > active.Ceiling():
		// Above the curve but below overpower: hand control to the
		// hardware firmware rather than guessing beyond the table.
		autoMode = true
		c.eval.PinTop(active, cl.Curve)
		c.transmitAutomatic(ctx)
	default:
		speed = c.eval.Evaluate(active, cl.Curve, cl.Effective)
		c.transmitSpeed(ctx, speed)
	}

	logger.Debug().
		Str("host", c.settings.Name).
		Float64("cpu_avg", summary.CPUAvg).
		Float64("gpu_avg", summary.GPUAvg).
		Float64("gpu_max", summary.GPUMax).
		Bool("has_gpu", summary.HasGPU).
		Float64("effective_temp", cl.Effective).
		Str("curve", string(cl.Curve)).
		Str("decision", string(cl.Decision)).
		Float64("fan_speed", speed).
		Bool("overpower", overpower).
		Bool("auto_mode", autoMode).
		Int("active_threshold", c.eval.State().ActiveIdx).
		Msg("")

	c.record(ctx, summary, cl, speed, overpower, autoMode)

	return nil
}

func (c *Controller) collect(ctx context.Context) []sensor.Reading {
	var readings []sensor.Reading
	for _, source := range c.sources {
		sourceReadings, err := source.Sample(ctx)
		if err != nil {
			if c.limiter.allow("source:" + source.Name()) {
				logger.Warn().
					Str("host", c.settings.Name).
					Str("source", source.Name()).
					Err(err).
					Msg("Sample source failed")
			}
			continue
		}
		readings = append(readings, sourceReadings...)
	}

	return readings
}

func (c *Controller) activeCurve(id curve.ID) curve.Curve {
	if id == curve.GPU {
		return c.settings.GPUCurve
	}

	return c.settings.CPUCurve
}

func (c *Controller) transmitSpeed(ctx context.Context, speed float64) {
	if c.monitor {
		return
	}

	if err := c.sink.SetSpeed(ctx, speed); err != nil {
		logger.ErrorWithCode(errors.New().Wrap(errors.ErrSinkTransmission, err)).
			Str("host", c.settings.Name).
			Float64("fan_speed", speed).
			Msg("Failed to set fan speed")
	}
}

func (c *Controller) transmitAutomatic(ctx context.Context) {
	if c.monitor {
		return
	}

	if err := c.sink.SetAutomatic(ctx); err != nil {
		logger.ErrorWithCode(errors.New().Wrap(errors.ErrSinkTransmission, err)).
			Str("host", c.settings.Name).
			Msg("Failed to enable automatic fan control")
	}
}

func (c *Controller) record(
	ctx context.Context, summary Summary, cl Classification, speed float64, overpower, autoMode bool,
) {
	if c.collector == nil {
		return
	}

	snapshot := &telemetry.Snapshot{
		Timestamp: time.Now(),
		Host:      c.settings.Name,
		Temperature: telemetry.TempMetrics{
			CPUAvg: summary.CPUAvg,
			GPUAvg: summary.GPUAvg,
			GPUMax: summary.GPUMax,
			HasGPU: summary.HasGPU,
		},
		Effective: cl.Effective,
		Curve:     string(cl.Curve),
		Decision:  string(cl.Decision),
		FanSpeed:  speed,
		Overpower: overpower,
		AutoMode:  autoMode,
	}

	if err := c.collector.Record(ctx, snapshot); err != nil {
		logger.Warn().Str("host", c.settings.Name).Err(err).Msg("Failed to record telemetry snapshot")
	}
}
