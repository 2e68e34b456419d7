package sensor

import (
	"context"
	"fmt"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"codeberg.org/mutker/ipmifanctl/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// NVMLSource samples every NVIDIA device visible through NVML. A host
// without NVIDIA GPUs is not an error: the source simply yields no readings.
type NVMLSource struct {
	initialized bool
}

func NewNVMLSource() (*NVMLSource, error) {
	errFactory := errors.New()

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, errFactory.WithMessage(errors.ErrInitFailed,
			fmt.Sprintf("failed to initialize NVML: %v", nvml.ErrorString(ret)))
	}

	s := &NVMLSource{initialized: true}

	count, ret := nvml.DeviceGetCount()
	if ret == nvml.SUCCESS {
		logger.Debug().Int("devices", count).Msg("NVML initialized")
	}

	return s, nil
}

func (s *NVMLSource) Name() string {
	return "nvml"
}

func (s *NVMLSource) Sample(ctx context.Context) ([]Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, errors.New().WithMessage(errors.ErrSampleSource,
			fmt.Sprintf("failed to get NVIDIA device count: %v", nvml.ErrorString(ret)))
	}

	var readings []Reading
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			logger.Warn().Msgf("Failed to get NVIDIA device %d: %v", i, nvml.ErrorString(ret))
			continue
		}

		temp, ret := device.GetTemperature(nvml.TEMPERATURE_GPU)
		if ret != nvml.SUCCESS {
			logger.Warn().Msgf("Failed to read temperature of NVIDIA device %d: %v", i, nvml.ErrorString(ret))
			continue
		}

		readings = append(readings, Reading{
			Class:  ClassGPU,
			Source: fmt.Sprintf("nvidia%d", i),
			Value:  float64(temp),
		})
	}

	return readings, nil
}

// Shutdown releases the NVML handle.
func (s *NVMLSource) Shutdown() error {
	if !s.initialized {
		return nil
	}
	s.initialized = false

	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return errors.New().WithMessage(errors.ErrShutdownFailed,
			fmt.Sprintf("failed to shut down NVML: %v", nvml.ErrorString(ret)))
	}

	return nil
}
