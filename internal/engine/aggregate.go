package engine

import (
	"math"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"codeberg.org/mutker/ipmifanctl/internal/logger"
	"codeberg.org/mutker/ipmifanctl/internal/sensor"
)

// Plausible temperature range in °C. Samples outside it are discarded, not
// clamped: a sensor reporting -40 or 200 is lying, not running cold or hot.
const (
	MinPlausibleTemp = 0.0
	MaxPlausibleTemp = 125.0
)

// Summary holds the per-cycle reduction of raw readings. GPUAvg and GPUMax
// are only meaningful when HasGPU is set; Peak is the hottest valid sample
// of any class and feeds the overpower guard.
type Summary struct {
	CPUAvg float64
	GPUAvg float64
	GPUMax float64
	HasGPU bool
	Peak   float64
}

// Aggregator reduces one cycle's readings for one host into a Summary.
type Aggregator struct {
	host    string
	limiter *warnLimiter
}

func NewAggregator(host string, limiter *warnLimiter) *Aggregator {
	return &Aggregator{
		host:    host,
		limiter: limiter,
	}
}

// Aggregate partitions readings by class, discards implausible values and
// computes the summary statistics. CPU presence is mandatory: zero valid CPU
// samples fail with no_cpu_data and the caller skips this host's cycle.
// Zero valid GPU samples mean "no GPU present" and are not an error.
func (a *Aggregator) Aggregate(readings []sensor.Reading) (Summary, error) {
	var (
		cpuSum            float64
		cpuCount          int
		gpuSum            float64
		gpuCount          int
		gpuMax, peak      float64
		discarded         int
		discardedExamples []sensor.Reading
	)

	for _, r := range readings {
		if r.Value < MinPlausibleTemp || r.Value > MaxPlausibleTemp {
			discarded++
			if len(discardedExamples) < 3 {
				discardedExamples = append(discardedExamples, r)
			}
			continue
		}

		if r.Value > peak {
			peak = r.Value
		}

		switch r.Class {
		case sensor.ClassCPU:
			cpuSum += r.Value
			cpuCount++
		case sensor.ClassGPU:
			gpuSum += r.Value
			gpuCount++
			if r.Value > gpuMax {
				gpuMax = r.Value
			}
		}
	}

	if discarded > 0 && a.limiter.allow("invalid_sample") {
		examples := make([]float64, 0, len(discardedExamples))
		for _, r := range discardedExamples {
			examples = append(examples, r.Value)
		}
		logger.Warn().
			Str("host", a.host).
			Int("discarded", discarded).
			Floats64("examples", examples).
			Msg("Discarded implausible temperature samples")
	}

	if cpuCount == 0 {
		return Summary{}, errors.New().WithData(errors.ErrNoCPUData, a.host)
	}

	summary := Summary{
		CPUAvg: roundDegree(cpuSum / float64(cpuCount)),
		Peak:   peak,
	}

	if gpuCount > 0 {
		summary.HasGPU = true
		summary.GPUAvg = roundDegree(gpuSum / float64(gpuCount))
		summary.GPUMax = gpuMax
	}

	return summary, nil
}

// roundDegree rounds to the nearest whole degree, halves to even, matching
// the controller's historical rounding of averaged readings.
func roundDegree(value float64) float64 {
	return math.RoundToEven(value)
}
