package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"codeberg.org/mutker/ipmifanctl/internal/config"
	"codeberg.org/mutker/ipmifanctl/internal/curve"
	"codeberg.org/mutker/ipmifanctl/internal/engine"
	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"codeberg.org/mutker/ipmifanctl/internal/ipmi"
	"codeberg.org/mutker/ipmifanctl/internal/logger"
	"codeberg.org/mutker/ipmifanctl/internal/pid"
	"codeberg.org/mutker/ipmifanctl/internal/sensor"
	"codeberg.org/mutker/ipmifanctl/internal/telemetry"
)

const shutdownTimeout = 20 * time.Second

type hostRuntime struct {
	controller *engine.Controller
	sink       *ipmi.Client
}

type app struct {
	cfg       *config.Config
	hosts     []hostRuntime
	collector telemetry.Collector
	nvml      *sensor.NVMLSource
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.General.Debug, cfg.General.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(); err != nil {
		logger.FatalWithCode(errors.New().Wrap(errors.ErrInitApp, err)).Msg("failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	a, err := newApp(cfg)
	if err != nil {
		logger.FatalWithCode(errors.New().Wrap(errors.ErrInitApp, err)).Msg("failed to initialize")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := a.loop(ctx); err != nil {
		logger.ErrorWithCode(errors.New().Wrap(errors.ErrMainLoop, err)).Msg("error in main loop")
	}

	a.cleanup()
}

func newApp(cfg *config.Config) (*app, error) {
	views, err := cfg.HostViews()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	if cfg.Telemetry.Enabled {
		tcfg := telemetry.DefaultConfig()
		if cfg.Telemetry.Database != "" {
			tcfg.DBPath = cfg.Telemetry.Database
		}
		if cfg.Telemetry.BatchSize > 0 {
			tcfg.BatchSize = cfg.Telemetry.BatchSize
		}
		if cfg.Telemetry.BatchTimeout > 0 {
			tcfg.BatchTimeout = cfg.Telemetry.BatchTimeout
		}

		a.collector, err = telemetry.NewService(tcfg)
		if err != nil {
			return nil, err
		}
	}

	for _, view := range views {
		logBanner(view)

		sources, err := a.sourcesFor(view)
		if err != nil {
			return nil, err
		}

		sink := ipmi.New(ipmi.Config{
			Hostname: view.IPMI.Hostname,
			Username: view.IPMI.Username,
			Password: view.IPMI.Password,
			DryRun:   cfg.General.Debug,
		})

		controller, err := engine.NewController(engine.HostSettings{
			Name:            view.Name,
			CPUCurve:        view.CPUCurve,
			GPUCurve:        view.GPUCurve,
			CPUWeight:       view.CPUWeight,
			GPUWeight:       view.GPUWeight,
			DominanceMargin: view.DominanceMargin,
			OverpowerMargin: view.OverpowerMargin,
		}, sources, sink, a.collector, cfg.General.Monitor)
		if err != nil {
			return nil, err
		}

		a.hosts = append(a.hosts, hostRuntime{controller: controller, sink: sink})
	}

	if cfg.General.Monitor {
		logger.Info().Msg("Monitor mode activated. Logging decisions without sending fan commands...")
	}

	return a, nil
}

// sourcesFor picks the sample sources for one host: a remote host samples
// over SSH, a local host reads hwmon and, when enabled, NVML.
func (a *app) sourcesFor(view config.HostView) ([]sensor.Source, error) {
	if view.Remote != nil {
		return []sensor.Source{sensor.NewRemoteSource(sensor.RemoteConfig{
			Host:         view.Remote.Host,
			User:         view.Remote.User,
			Port:         view.Remote.Port,
			IdentityFile: view.Remote.IdentityFile,
			Command:      view.Remote.Command,
			GPUCommand:   view.Remote.GPUCommand,
		})}, nil
	}

	sources := []sensor.Source{
		sensor.NewHwmonSource(a.cfg.GPUMonitoring.MonitorAMDGPUs),
	}

	if a.cfg.GPUMonitoring.MonitorNvidiaGPUs {
		if a.nvml == nil {
			nvmlSource, err := sensor.NewNVMLSource()
			if err != nil {
				// A host without the NVIDIA driver stack is normal; GPU
				// monitoring degrades to hwmon only.
				logger.Warn().Err(err).Msg("NVML unavailable; NVIDIA GPUs will not be monitored")
			} else {
				a.nvml = nvmlSource
			}
		}
		if a.nvml != nil {
			sources = append(sources, a.nvml)
		}
	}

	return sources, nil
}

func (a *app) loop(ctx context.Context) error {
	interval := time.Duration(a.cfg.General.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// tick evaluates every host once. Hosts share no state, so they run
// concurrently; a failed host skips its cycle without affecting the others.
func (a *app) tick(ctx context.Context) {
	var wg sync.WaitGroup
	for i := range a.hosts {
		host := a.hosts[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := host.controller.Tick(ctx); err != nil {
				logger.Debug().
					Str("host", host.controller.Name()).
					Err(err).
					Msg("Cycle skipped")
			}
		}()
	}
	wg.Wait()
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

// cleanup returns every host's fans to firmware control before exit, then
// closes telemetry and NVML. Failures are logged and skipped so one stuck
// BMC cannot block the rest of the shutdown.
func (a *app) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, host := range a.hosts {
		if err := host.sink.SetAutomatic(ctx); err != nil {
			logger.Error().Err(err).Str("host", host.controller.Name()).
				Msg("failed to restore automatic fan control")
		}
	}

	if a.collector != nil {
		if err := a.collector.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close telemetry")
		}
	}

	if a.nvml != nil {
		if err := a.nvml.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("failed to shut down NVML")
		}
	}

	logger.Info().Msg("Exiting...")
}

func logBanner(view config.HostView) {
	logger.Info().
		Str("host", view.Name).
		Str("cpu_curve", formatCurve(view.CPUCurve)).
		Str("gpu_curve", formatCurve(view.GPUCurve)).
		Msg("Controlling host")
}

func formatCurve(c curve.Curve) string {
	parts := make([]string, len(c.Temperatures))
	for i := range c.Temperatures {
		parts[i] = fmt.Sprintf("%.0f°C (%.0f%%)", c.Temperatures[i], c.Speeds[i])
	}

	return strings.Join(parts, ", ")
}
