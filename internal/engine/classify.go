package engine

import "codeberg.org/mutker/ipmifanctl/internal/curve"

// DefaultDominanceMargin is the temperature gap, in °C, beyond which one
// component class is considered dominant over the other.
const DefaultDominanceMargin = 10.0

// Decision names the branch the classifier took, for diagnostics and the
// telemetry log.
type Decision string

const (
	DecisionCPUOnly     Decision = "cpu_only"
	DecisionCPUDominant Decision = "cpu_dominant"
	DecisionGPUDominant Decision = "gpu_dominant"
	DecisionBalanced    Decision = "balanced"
)

// Classification is the classifier's per-cycle output. It carries no state.
type Classification struct {
	Effective float64
	Curve     curve.ID
	Decision  Decision
}

// Classify decides which thermal curve governs this cycle and the single
// effective temperature to feed it.
//
// GPU dominance requires gpu_max to exceed cpu_avg by strictly more than the
// margin; the mirror holds for CPU dominance. Everything in between is a
// balanced load, which blends the two by weight but stays on the CPU curve.
// Ties at exactly ±margin therefore land in the balanced branch, and the
// strict comparisons are part of the contract.
func Classify(s Summary, cpuWeight, gpuWeight, margin float64) Classification {
	if !s.HasGPU {
		return Classification{
			Effective: s.CPUAvg,
			Curve:     curve.CPU,
			Decision:  DecisionCPUOnly,
		}
	}

	diff := s.GPUMax - s.CPUAvg

	switch {
	case diff > margin:
		return Classification{
			Effective: s.GPUMax,
			Curve:     curve.GPU,
			Decision:  DecisionGPUDominant,
		}
	case diff < -margin:
		return Classification{
			Effective: s.CPUAvg,
			Curve:     curve.CPU,
			Decision:  DecisionCPUDominant,
		}
	default:
		return Classification{
			Effective: roundDegree(s.CPUAvg*cpuWeight + s.GPUMax*gpuWeight),
			Curve:     curve.CPU,
			Decision:  DecisionBalanced,
		}
	}
}
