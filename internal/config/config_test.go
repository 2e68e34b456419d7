package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/ipmifanctl/internal/config"
	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, yaml string, args ...string) (*config.Config, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ipmifanctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("IPMIFANCTL_CONFIG", path)

	oldArgs := os.Args
	os.Args = append([]string{"ipmifanctl"}, args...)
	t.Cleanup(func() { os.Args = oldArgs })

	return config.Load()
}

const splitCurveYAML = `
general:
  interval: 30
  monitor: true
temperature_control:
  cpu_weight: 0.6
  gpu_weight: 0.4
  dominance_margin: 8
  max_overpower_threshold: 12
  cpu_curve:
    temperatures: [55, 60, 70, 75]
    speeds: [13, 17, 25, 37]
    hysteresis: 2
  gpu_curve:
    temperatures: [65, 70, 80, 85]
    speeds: [15, 20, 30, 40]
hosts:
  - name: r730
    ipmi:
      hostname: 10.0.0.5
      username: root
      password: calvin
`

func TestLoadSplitCurveConfig(t *testing.T) {
	cfg, err := loadConfig(t, splitCurveYAML)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.General.Interval)
	assert.True(t, cfg.General.Monitor)

	views, err := cfg.HostViews()
	require.NoError(t, err)
	require.Len(t, views, 1)

	view := views[0]
	assert.Equal(t, "r730", view.Name)
	assert.Equal(t, []float64{55, 60, 70, 75}, view.CPUCurve.Temperatures)
	assert.InDelta(t, 2, view.CPUCurve.Hysteresis, 0.001)
	assert.Equal(t, []float64{65, 70, 80, 85}, view.GPUCurve.Temperatures)
	// Hysteresis left unset on a split curve defaults to 2°C.
	assert.InDelta(t, 2, view.GPUCurve.Hysteresis, 0.001)
	assert.InDelta(t, 0.6, view.CPUWeight, 0.001)
	assert.InDelta(t, 0.4, view.GPUWeight, 0.001)
	assert.InDelta(t, 8, view.DominanceMargin, 0.001)
	assert.InDelta(t, 12, view.OverpowerMargin, 0.001)
	assert.Equal(t, "10.0.0.5", view.IPMI.Hostname)
	assert.Equal(t, "root", view.IPMI.Username)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := loadConfig(t, `
hosts:
  - name: local
    cpu_curve:
      temperatures: [50, 70]
      speeds: [20, 40]
`)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultInterval, cfg.General.Interval)
	assert.True(t, cfg.GPUMonitoring.MonitorAMDGPUs)
	assert.True(t, cfg.GPUMonitoring.MonitorNvidiaGPUs)

	views, err := cfg.HostViews()
	require.NoError(t, err)
	view := views[0]
	assert.InDelta(t, config.DefaultCPUWeight, view.CPUWeight, 0.001)
	assert.InDelta(t, config.DefaultGPUWeight, view.GPUWeight, 0.001)
	assert.InDelta(t, config.DefaultDominanceMargin, view.DominanceMargin, 0.001)
	assert.InDelta(t, config.DefaultOverpowerMargin, view.OverpowerMargin, 0.001)
}

func TestLoadLegacySingleHostBlock(t *testing.T) {
	cfg, err := loadConfig(t, `
host:
  name: r620
  temperatures: [55, 65, 75]
  speeds: [15, 25, 40]
  ipmi:
    hostname: 10.0.0.9
`)
	require.NoError(t, err)

	views, err := cfg.HostViews()
	require.NoError(t, err)
	require.Len(t, views, 1)

	view := views[0]
	assert.Equal(t, "r620", view.Name)
	assert.Equal(t, []float64{55, 65, 75}, view.CPUCurve.Temperatures)
	// Legacy curves historically ran without hysteresis.
	assert.InDelta(t, 0, view.CPUCurve.Hysteresis, 0.001)
	// Without a GPU curve both classes run off the CPU curve.
	assert.Equal(t, view.CPUCurve, view.GPUCurve)
}

func TestLoadLegacyBlockJoinsHostList(t *testing.T) {
	cfg, err := loadConfig(t, `
host:
  name: r620
  temperatures: [55, 65]
  speeds: [15, 25]
hosts:
  - name: r730
    cpu_curve:
      temperatures: [50, 70]
      speeds: [20, 40]
`)
	require.NoError(t, err)

	views, err := cfg.HostViews()
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "r620", views[0].Name)
	assert.Equal(t, "r730", views[1].Name)
}

func TestLoadHostCurveOverridesGlobal(t *testing.T) {
	cfg, err := loadConfig(t, `
temperature_control:
  cpu_curve:
    temperatures: [50, 70]
    speeds: [20, 40]
hosts:
  - name: a
  - name: b
    cpu_curve:
      temperatures: [40, 60]
      speeds: [10, 30]
`)
	require.NoError(t, err)

	views, err := cfg.HostViews()
	require.NoError(t, err)
	assert.Equal(t, []float64{50, 70}, views[0].CPUCurve.Temperatures)
	assert.Equal(t, []float64{40, 60}, views[1].CPUCurve.Temperatures)
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	cfg, err := loadConfig(t, splitCurveYAML, "--interval", "15", "--debug")
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.General.Interval)
	assert.True(t, cfg.General.Debug)
}

func TestLoadRejectsInvalidInterval(t *testing.T) {
	_, err := loadConfig(t, `
general:
  interval: -5
hosts:
  - name: x
    cpu_curve:
      temperatures: [50, 70]
      speeds: [20, 40]
`)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))
}

func TestLoadRejectsMissingHosts(t *testing.T) {
	_, err := loadConfig(t, "general:\n  interval: 60\n")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrMissingConfig))
}

func TestLoadRejectsHostWithoutCurve(t *testing.T) {
	_, err := loadConfig(t, "hosts:\n  - name: bare\n")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrMissingConfig))
}

func TestLoadRejectsSingleThresholdLegacyCurve(t *testing.T) {
	_, err := loadConfig(t, `
hosts:
  - name: x
    temperatures: [60]
    speeds: [30]
`)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidCurve))
}

func TestLoadRejectsInvalidWeight(t *testing.T) {
	_, err := loadConfig(t, `
temperature_control:
  cpu_weight: 1.3
hosts:
  - name: x
    cpu_curve:
      temperatures: [50, 70]
      speeds: [20, 40]
`)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidWeight))
}

func TestLoadRejectsDuplicateHostNames(t *testing.T) {
	_, err := loadConfig(t, `
temperature_control:
  cpu_curve:
    temperatures: [50, 70]
    speeds: [20, 40]
hosts:
  - name: twin
  - name: twin
`)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig))
}

func TestLoadRejectsNonMonotonicCurve(t *testing.T) {
	_, err := loadConfig(t, `
hosts:
  - name: x
    cpu_curve:
      temperatures: [70, 50]
      speeds: [20, 40]
`)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidCurve))
}
