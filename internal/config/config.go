// Package config loads and validates the controller's YAML configuration.
// All validation happens once here, at load time; the rest of the program
// assumes a well-formed configuration and never re-checks.
package config

import (
	"fmt"
	"os"

	"codeberg.org/mutker/ipmifanctl/internal/curve"
	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultInterval        = 60
	DefaultDominanceMargin = 10.0
	DefaultOverpowerMargin = 15.0
	DefaultCPUWeight       = 0.5
	DefaultGPUWeight       = 0.5

	// Legacy single-curve hosts historically ran without hysteresis;
	// split-curve configurations default to a 2°C margin.
	defaultLegacyHysteresis = 0.0
	defaultCurveHysteresis  = 2.0

	// Legacy host blocks must define at least two thresholds; a single
	// threshold gives the controller nothing to step between.
	minLegacyThresholds = 2
)

type Config struct {
	General            GeneralConfig            `mapstructure:"general"`
	GPUMonitoring      GPUMonitoringConfig      `mapstructure:"gpu_monitoring"`
	TemperatureControl TemperatureControlConfig `mapstructure:"temperature_control"`
	Telemetry          TelemetryConfig          `mapstructure:"telemetry"`
	Host               *HostConfig              `mapstructure:"host"`
	Hosts              []HostConfig             `mapstructure:"hosts"`
}

type GeneralConfig struct {
	Interval int  `mapstructure:"interval"`
	Debug    bool `mapstructure:"debug"`
	Verbose  bool `mapstructure:"verbose"`
	Monitor  bool `mapstructure:"monitor"`
}

type GPUMonitoringConfig struct {
	MonitorAMDGPUs    bool `mapstructure:"monitor_amd_gpus"`
	MonitorNvidiaGPUs bool `mapstructure:"monitor_nvidia_gpus"`
}

type TemperatureControlConfig struct {
	CPUWeight             *float64     `mapstructure:"cpu_weight"`
	GPUWeight             *float64     `mapstructure:"gpu_weight"`
	DominanceMargin       *float64     `mapstructure:"dominance_margin"`
	MaxOverpowerThreshold *float64     `mapstructure:"max_overpower_threshold"`
	CPUCurve              *CurveConfig `mapstructure:"cpu_curve"`
	GPUCurve              *CurveConfig `mapstructure:"gpu_curve"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Database     string `mapstructure:"database"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchTimeout int    `mapstructure:"batch_timeout"`
}

type CurveConfig struct {
	Temperatures []float64 `mapstructure:"temperatures"`
	Speeds       []float64 `mapstructure:"speeds"`
	Hysteresis   *float64  `mapstructure:"hysteresis"`
}

type HostConfig struct {
	Name         string        `mapstructure:"name"`
	Temperatures []float64     `mapstructure:"temperatures"`
	Speeds       []float64     `mapstructure:"speeds"`
	Hysteresis   *float64      `mapstructure:"hysteresis"`
	CPUCurve     *CurveConfig  `mapstructure:"cpu_curve"`
	GPUCurve     *CurveConfig  `mapstructure:"gpu_curve"`
	IPMI         IPMIConfig    `mapstructure:"ipmi"`
	Remote       *RemoteConfig `mapstructure:"remote"`
}

type IPMIConfig struct {
	Hostname string `mapstructure:"hostname"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type RemoteConfig struct {
	Host         string `mapstructure:"host"`
	User         string `mapstructure:"user"`
	Port         string `mapstructure:"port"`
	IdentityFile string `mapstructure:"identity_file"`
	Command      string `mapstructure:"command"`
	GPUCommand   string `mapstructure:"gpu_command"`
}

// HostView is the resolved, per-host configuration the rest of the program
// consumes: curve fallbacks applied, weights and margins defaulted.
type HostView struct {
	Name            string
	CPUCurve        curve.Curve
	GPUCurve        curve.Curve
	CPUWeight       float64
	GPUWeight       float64
	DominanceMargin float64
	OverpowerMargin float64
	IPMI            IPMIConfig
	Remote          *RemoteConfig
}

func Load() (*Config, error) {
	errFactory := errors.New()

	flags := pflag.NewFlagSet("ipmifanctl", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "Path to configuration file")
	interval := flags.IntP("interval", "i", 0, "Polling interval in seconds")
	debug := flags.BoolP("debug", "d", false, "Enable debugging mode")
	verbose := flags.Bool("verbose", false, "Enable verbose logging")
	monitor := flags.Bool("monitor", false, "Evaluate and log but never send fan commands")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("general.interval", DefaultInterval)
	v.SetDefault("gpu_monitoring.monitor_amd_gpus", true)
	v.SetDefault("gpu_monitoring.monitor_nvidia_gpus", true)

	switch {
	case *configPath != "":
		v.SetConfigFile(*configPath)
	case os.Getenv("IPMIFANCTL_CONFIG") != "":
		v.SetConfigFile(os.Getenv("IPMIFANCTL_CONFIG"))
	default:
		v.SetConfigName("ipmifanctl")
		v.AddConfigPath(".")
		v.AddConfigPath("/opt/ipmifanctl")
		v.AddConfigPath("/etc/ipmifanctl")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if *interval > 0 {
		config.General.Interval = *interval
	}
	config.General.Debug = config.General.Debug || *debug
	config.General.Verbose = config.General.Verbose || *verbose
	config.General.Monitor = config.General.Monitor || *monitor

	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.General.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else if config.General.Verbose {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	return config, nil
}

// normalize folds the legacy single-host block into the host list.
func (c *Config) normalize() {
	if c.Host != nil {
		c.Hosts = append([]HostConfig{*c.Host}, c.Hosts...)
		c.Host = nil
	}
}

// Validate rejects configurations the controller cannot safely run with.
// This is the only place configuration errors surface; they abort startup.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.General.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.General.Interval)
	}

	if len(c.Hosts) == 0 {
		return errFactory.WithMessage(errors.ErrMissingConfig, "no hosts configured")
	}

	seen := make(map[string]bool, len(c.Hosts))
	for i := range c.Hosts {
		view, err := c.resolveHost(&c.Hosts[i])
		if err != nil {
			return err
		}
		if seen[view.Name] {
			return errFactory.WithMessage(errors.ErrInvalidConfig,
				fmt.Sprintf("duplicate host name %q", view.Name))
		}
		seen[view.Name] = true

		if err := view.CPUCurve.Validate(); err != nil {
			return err
		}
		if err := view.GPUCurve.Validate(); err != nil {
			return err
		}
		if view.CPUWeight < 0 || view.CPUWeight > 1 {
			return errFactory.WithData(errors.ErrInvalidWeight, view.CPUWeight)
		}
		if view.GPUWeight < 0 || view.GPUWeight > 1 {
			return errFactory.WithData(errors.ErrInvalidWeight, view.GPUWeight)
		}
	}

	return nil
}

// HostViews resolves every configured host. Call after Validate; resolution
// itself only fails on structural problems Validate would have caught.
func (c *Config) HostViews() ([]HostView, error) {
	views := make([]HostView, 0, len(c.Hosts))
	for i := range c.Hosts {
		view, err := c.resolveHost(&c.Hosts[i])
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}

	return views, nil
}

func (c *Config) resolveHost(host *HostConfig) (HostView, error) {
	errFactory := errors.New()

	name := host.Name
	if name == "" {
		return HostView{}, errFactory.WithMessage(errors.ErrInvalidConfig, "host has no name")
	}

	legacy, hasLegacy, err := c.legacyCurve(host)
	if err != nil {
		return HostView{}, err
	}

	cpuCurve, ok := pickCurve(host.CPUCurve, c.TemperatureControl.CPUCurve)
	if !ok {
		if !hasLegacy {
			return HostView{}, errFactory.WithMessage(errors.ErrMissingConfig,
				fmt.Sprintf("host %q defines neither a cpu_curve nor a legacy curve", name))
		}
		cpuCurve = legacy
	}

	// Without a GPU curve of its own, a host runs both classes off the CPU
	// curve. This is the legacy single-curve compatibility contract.
	gpuCurve, ok := pickCurve(host.GPUCurve, c.TemperatureControl.GPUCurve)
	if !ok {
		gpuCurve = cpuCurve
	}

	return HostView{
		Name:            name,
		CPUCurve:        cpuCurve,
		GPUCurve:        gpuCurve,
		CPUWeight:       floatOr(c.TemperatureControl.CPUWeight, DefaultCPUWeight),
		GPUWeight:       floatOr(c.TemperatureControl.GPUWeight, DefaultGPUWeight),
		DominanceMargin: floatOr(c.TemperatureControl.DominanceMargin, DefaultDominanceMargin),
		OverpowerMargin: floatOr(c.TemperatureControl.MaxOverpowerThreshold, DefaultOverpowerMargin),
		IPMI:            host.IPMI,
		Remote:          host.Remote,
	}, nil
}

func (c *Config) legacyCurve(host *HostConfig) (curve.Curve, bool, error) {
	if len(host.Temperatures) == 0 && len(host.Speeds) == 0 {
		return curve.Curve{}, false, nil
	}

	if len(host.Temperatures) < minLegacyThresholds {
		return curve.Curve{}, false, errors.New().WithMessage(errors.ErrInvalidCurve,
			fmt.Sprintf("host %q has fewer than %d temperature thresholds", host.Name, minLegacyThresholds))
	}

	return curve.Curve{
		Temperatures: host.Temperatures,
		Speeds:       host.Speeds,
		Hysteresis:   floatOr(host.Hysteresis, defaultLegacyHysteresis),
	}, true, nil
}

func pickCurve(candidates ...*CurveConfig) (curve.Curve, bool) {
	for _, cc := range candidates {
		if cc != nil && len(cc.Temperatures) > 0 {
			return curve.Curve{
				Temperatures: cc.Temperatures,
				Speeds:       cc.Speeds,
				Hysteresis:   floatOr(cc.Hysteresis, defaultCurveHysteresis),
			}, true
		}
	}

	return curve.Curve{}, false
}

func floatOr(value *float64, fallback float64) float64 {
	if value != nil {
		return *value
	}

	return fallback
}
