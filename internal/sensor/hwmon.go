package sensor

import (
	"context"
	"strings"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"github.com/shirou/gopsutil/v4/sensors"
)

// cpuChipPrefixes are the hwmon chip names that report CPU die temperatures.
// coretemp is Intel, k10temp is AMD.
var cpuChipPrefixes = []string{"coretemp", "k10temp"}

// gpuChipPrefixes are the hwmon chip names that report GPU temperatures.
// Only amdgpu qualifies; NVIDIA cards are sampled through NVML instead.
var gpuChipPrefixes = []string{"amdgpu"}

// HwmonSource samples local hwmon chips through gopsutil.
type HwmonSource struct {
	includeGPU bool
	read       func(ctx context.Context) ([]sensors.TemperatureStat, error)
}

// NewHwmonSource returns a source for local CPU readings, and AMD GPU
// readings when includeGPU is set.
func NewHwmonSource(includeGPU bool) *HwmonSource {
	return &HwmonSource{
		includeGPU: includeGPU,
		read:       sensors.TemperaturesWithContext,
	}
}

func (s *HwmonSource) Name() string {
	return "hwmon"
}

func (s *HwmonSource) Sample(ctx context.Context) ([]Reading, error) {
	stats, err := s.read(ctx)
	if err != nil {
		// gopsutil reports partial failures as a non-nil error alongside
		// whatever stats it could read. Keep the readings and let the
		// aggregator decide whether enough survived.
		if len(stats) == 0 {
			return nil, errors.New().Wrap(errors.ErrSampleSource, err)
		}
	}

	var readings []Reading
	for _, stat := range stats {
		if class, ok := s.classify(stat.SensorKey); ok {
			readings = append(readings, Reading{
				Class:  class,
				Source: stat.SensorKey,
				Value:  stat.Temperature,
			})
		}
	}

	return readings, nil
}

func (s *HwmonSource) classify(key string) (Class, bool) {
	for _, prefix := range cpuChipPrefixes {
		if strings.HasPrefix(key, prefix) {
			return ClassCPU, true
		}
	}

	if s.includeGPU {
		for _, prefix := range gpuChipPrefixes {
			if strings.HasPrefix(key, prefix) {
				return ClassGPU, true
			}
		}
	}

	return "", false
}
