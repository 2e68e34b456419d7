// Package sensor provides temperature sample sources: local hwmon chips,
// NVIDIA devices via NVML, and remote hosts over SSH. Sources only acquire
// raw readings; all policy lives in the engine.
package sensor

import "context"

// Class tags a reading with the component class it belongs to.
type Class string

const (
	ClassCPU Class = "cpu"
	ClassGPU Class = "gpu"
)

// Reading is a single raw temperature sample. Values are reported as-is;
// plausibility filtering happens in the aggregator, not here.
type Reading struct {
	Class  Class
	Source string
	Value  float64
}

// Source produces zero or more readings per polling cycle. Sample may block
// on hardware or network I/O and must honor ctx cancellation.
type Source interface {
	Name() string
	Sample(ctx context.Context) ([]Reading, error)
}
