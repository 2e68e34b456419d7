package engine

import (
	"testing"

	"codeberg.org/mutker/ipmifanctl/internal/curve"
	"github.com/stretchr/testify/assert"
)

func TestClassifyCPUOnlyWhenNoGPUData(t *testing.T) {
	cl := Classify(Summary{CPUAvg: 65}, 0.5, 0.5, DefaultDominanceMargin)

	assert.Equal(t, curve.CPU, cl.Curve)
	assert.Equal(t, DecisionCPUOnly, cl.Decision)
	assert.InDelta(t, 65, cl.Effective, 0.001)
}

func TestClassifyCPUDominant(t *testing.T) {
	summary := Summary{CPUAvg: 80, GPUAvg: 52, GPUMax: 55, HasGPU: true}
	cl := Classify(summary, 0.5, 0.5, DefaultDominanceMargin)

	assert.Equal(t, curve.CPU, cl.Curve)
	assert.Equal(t, DecisionCPUDominant, cl.Decision)
	assert.InDelta(t, 80, cl.Effective, 0.001)
}

func TestClassifyGPUDominant(t *testing.T) {
	summary := Summary{CPUAvg: 60, GPUAvg: 72, GPUMax: 75, HasGPU: true}
	cl := Classify(summary, 0.5, 0.5, DefaultDominanceMargin)

	assert.Equal(t, curve.GPU, cl.Curve)
	assert.Equal(t, DecisionGPUDominant, cl.Decision)
	assert.InDelta(t, 75, cl.Effective, 0.001)
}

func TestClassifyBalancedBlendsByWeightOnCPUCurve(t *testing.T) {
	summary := Summary{CPUAvg: 65, GPUAvg: 66, GPUMax: 68, HasGPU: true}
	cl := Classify(summary, 0.5, 0.5, DefaultDominanceMargin)

	// Balanced load stays on the CPU curve; only the temperature blends.
	assert.Equal(t, curve.CPU, cl.Curve)
	assert.Equal(t, DecisionBalanced, cl.Decision)
	assert.InDelta(t, 66, cl.Effective, 0.001)
}

func TestClassifyBalancedHonorsUnevenWeights(t *testing.T) {
	summary := Summary{CPUAvg: 60, GPUAvg: 66, GPUMax: 68, HasGPU: true}
	cl := Classify(summary, 0.75, 0.25, DefaultDominanceMargin)

	assert.Equal(t, DecisionBalanced, cl.Decision)
	assert.InDelta(t, 62, cl.Effective, 0.001)
}

func TestClassifyTieAtMarginIsNotDominant(t *testing.T) {
	// diff of exactly +margin stays balanced: dominance needs a strict
	// excess over the margin.
	summary := Summary{CPUAvg: 60, GPUAvg: 68, GPUMax: 70, HasGPU: true}
	cl := Classify(summary, 0.5, 0.5, 10)

	assert.Equal(t, DecisionBalanced, cl.Decision)
	assert.Equal(t, curve.CPU, cl.Curve)
	assert.InDelta(t, 65, cl.Effective, 0.001)

	// diff of exactly -margin likewise.
	summary = Summary{CPUAvg: 70, GPUAvg: 58, GPUMax: 60, HasGPU: true}
	cl = Classify(summary, 0.5, 0.5, 10)

	assert.Equal(t, DecisionBalanced, cl.Decision)
	assert.InDelta(t, 65, cl.Effective, 0.001)
}

func TestClassifyJustBeyondMarginIsDominant(t *testing.T) {
	summary := Summary{CPUAvg: 60, GPUAvg: 68, GPUMax: 70.1, HasGPU: true}
	cl := Classify(summary, 0.5, 0.5, 10)

	assert.Equal(t, DecisionGPUDominant, cl.Decision)
	assert.InDelta(t, 70.1, cl.Effective, 0.001)
}
