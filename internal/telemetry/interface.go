package telemetry

import (
	"context"
	"time"
)

// Collector records one decision snapshot per host per polling cycle.
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Snapshot captures everything the decision engine produced for one host in
// one cycle.
type Snapshot struct {
	Timestamp   time.Time
	Host        string
	Temperature TempMetrics
	Effective   float64
	Curve       string
	Decision    string
	FanSpeed    float64
	Overpower   bool
	AutoMode    bool
}

// TempMetrics holds the aggregated temperature statistics for a cycle.
type TempMetrics struct {
	CPUAvg float64
	GPUAvg float64
	GPUMax float64
	HasGPU bool
}
