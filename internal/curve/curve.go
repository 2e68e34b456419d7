// Package curve holds the temperature-to-speed lookup tables and the
// per-host hysteresis state machine that turns an effective temperature
// into a fan speed percentage.
package curve

import (
	"fmt"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
)

// ID names the component class a curve governs.
type ID string

const (
	CPU ID = "cpu"
	GPU ID = "gpu"
)

const (
	MinSpeedPercent = 0.0
	MaxSpeedPercent = 100.0
)

// Curve is an ordered temperature→speed table with a hysteresis margin.
// Temperatures are strictly increasing, speeds non-decreasing, and both
// slices are the same length.
type Curve struct {
	Temperatures []float64
	Speeds       []float64
	Hysteresis   float64
}

// Validate checks the structural invariants. A curve that fails here is a
// configuration error and must be rejected at load time; evaluation assumes
// a valid curve and never re-checks.
func (c Curve) Validate() error {
	errFactory := errors.New()

	if len(c.Temperatures) == 0 {
		return errFactory.WithMessage(errors.ErrInvalidCurve, "curve has no thresholds")
	}

	if len(c.Temperatures) != len(c.Speeds) {
		return errFactory.WithData(errors.ErrInvalidCurve, struct {
			Temperatures int
			Speeds       int
		}{
			Temperatures: len(c.Temperatures),
			Speeds:       len(c.Speeds),
		})
	}

	for i := 1; i < len(c.Temperatures); i++ {
		if c.Temperatures[i] <= c.Temperatures[i-1] {
			return errFactory.WithMessage(errors.ErrInvalidCurve,
				fmt.Sprintf("temperatures must be strictly increasing: %.1f°C followed by %.1f°C",
					c.Temperatures[i-1], c.Temperatures[i]))
		}
		if c.Speeds[i] < c.Speeds[i-1] {
			return errFactory.WithMessage(errors.ErrInvalidCurve,
				fmt.Sprintf("speeds must not decrease: %.1f%% followed by %.1f%%",
					c.Speeds[i-1], c.Speeds[i]))
		}
	}

	for _, s := range c.Speeds {
		if s < MinSpeedPercent || s > MaxSpeedPercent {
			return errFactory.WithMessage(errors.ErrInvalidCurve,
				fmt.Sprintf("speed %.1f%% outside [0,100]", s))
		}
	}

	if c.Hysteresis < 0 {
		return errFactory.WithMessage(errors.ErrInvalidCurve,
			fmt.Sprintf("hysteresis %.1f°C must not be negative", c.Hysteresis))
	}

	return nil
}

// Ceiling returns the highest temperature threshold.
func (c Curve) Ceiling() float64 {
	return c.Temperatures[len(c.Temperatures)-1]
}

// MaxSpeed returns the highest defined speed.
func (c Curve) MaxSpeed() float64 {
	return c.Speeds[len(c.Speeds)-1]
}

// MinSpeed returns the lowest defined speed.
func (c Curve) MinSpeed() float64 {
	return c.Speeds[0]
}

func clamp(value, minValue, maxValue float64) float64 {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}
