// Package ipmi drives Dell iDRAC fan control through ipmitool raw commands.
// It is the engine's fan-speed sink: it transmits speed percentages, switches
// between manual and firmware-automatic control, and never holds any
// decision state beyond the last transmitted value.
package ipmi

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"codeberg.org/mutker/ipmifanctl/internal/logger"
)

const (
	defaultBinary    = "ipmitool"
	defaultInterface = "lanplus"
	commandTimeout   = 15 * time.Second
	modeSettleDelay  = 1 * time.Second

	// iDRAC only accepts manual speeds in this band; anything below the
	// floor would stall the fans.
	minTransmittablePercent = 5
	maxTransmittablePercent = 100
)

// Raw command payloads for Dell iDRAC fan control.
var (
	rawManualMode    = []string{"raw", "0x30", "0x30", "0x01", "0x00"}
	rawAutomaticMode = []string{"raw", "0x30", "0x30", "0x01", "0x01"}
	rawSpeedPrefix   = []string{"raw", "0x30", "0x30", "0x02", "0xff"}
)

type Mode string

const (
	ModeAutomatic Mode = "automatic"
	ModeManual    Mode = "manual"
)

// Config locates the BMC. An empty Hostname targets the local BMC through
// the kernel IPMI device; otherwise ipmitool goes over lanplus.
type Config struct {
	Hostname string
	Username string
	Password string
	Binary   string
	DryRun   bool
}

// Client transmits fan commands for one host. Safe for use by a single
// controller; the mutex only protects against the shutdown path racing the
// polling loop.
type Client struct {
	cfg       Config
	mu        sync.Mutex
	mode      Mode
	lastSpeed int
	run       func(ctx context.Context, args []string) error
}

func New(cfg Config) *Client {
	if cfg.Binary == "" {
		cfg.Binary = defaultBinary
	}

	c := &Client{
		cfg: cfg,
		// BMCs boot in automatic mode; the first manual speed command is
		// always preceded by an explicit mode switch.
		mode: ModeAutomatic,
	}
	c.run = c.execIPMITool

	return c
}

// Mode returns the last commanded fan control mode.
func (c *Client) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.mode
}

// SetSpeed transmits a fan speed percentage. Repeats of the current speed
// are elided; values below the transmittable floor are skipped rather than
// rounded up, matching firmware constraints.
func (c *Client) SetSpeed(ctx context.Context, percent float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wanted := int(math.Round(percent))
	if wanted == c.lastSpeed && c.mode == ModeManual {
		return nil
	}

	if wanted < minTransmittablePercent || wanted > maxTransmittablePercent {
		logger.Debug().
			Str("host", c.cfg.Hostname).
			Int("fan_speed", wanted).
			Msg("Fan speed outside transmittable range; not sent")
		return nil
	}

	if c.mode != ModeManual {
		if err := c.setMode(ctx, ModeManual); err != nil {
			return err
		}
		// Give the BMC a moment to accept the mode switch before the
		// first speed command.
		select {
		case <-time.After(modeSettleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	args := append(append([]string{}, rawSpeedPrefix...), fmt.Sprintf("%#04x", wanted))
	if err := c.run(ctx, args); err != nil {
		return err
	}

	logger.Info().Str("host", c.cfg.Hostname).Int("fan_speed", wanted).Msg("Set fan speed")
	c.lastSpeed = wanted

	return nil
}

// SetAutomatic returns fan control to the hardware firmware.
func (c *Client) SetAutomatic(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.setMode(ctx, ModeAutomatic)
}

func (c *Client) setMode(ctx context.Context, wanted Mode) error {
	if wanted == c.mode {
		return nil
	}

	var args []string
	switch wanted {
	case ModeManual:
		args = rawManualMode
	case ModeAutomatic:
		args = rawAutomaticMode
	}

	if err := c.run(ctx, args); err != nil {
		return err
	}

	c.mode = wanted
	if wanted == ModeAutomatic {
		c.lastSpeed = 0
	}
	logger.Debug().Str("host", c.cfg.Hostname).Str("mode", string(wanted)).Msg("Fan control mode set")

	return nil
}

func (c *Client) execIPMITool(ctx context.Context, args []string) error {
	full := c.buildArgs(args)

	logger.Debug().Str("command", redact(c.cfg.Binary, full)).Msg("Running ipmitool")
	if c.cfg.DryRun {
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	errFactory := errors.New()
	cmd := exec.CommandContext(runCtx, c.cfg.Binary, full...)
	if output, err := cmd.CombinedOutput(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return errFactory.WithData(errors.ErrSinkTimeout, redact(c.cfg.Binary, full))
		}
		return errFactory.WithData(errors.ErrSinkTransmission, struct {
			Command string
			Output  string
			Error   string
		}{
			Command: redact(c.cfg.Binary, full),
			Output:  strings.TrimSpace(string(output)),
			Error:   err.Error(),
		})
	}

	return nil
}

func (c *Client) buildArgs(raw []string) []string {
	if c.cfg.Hostname == "" {
		return raw
	}

	args := []string{
		"-I", defaultInterface,
		"-H", c.cfg.Hostname,
		"-U", c.cfg.Username,
		"-P", c.cfg.Password,
	}

	return append(args, raw...)
}

// redact renders a command line with IPMI credentials blanked out so they
// never reach the logs.
func redact(binary string, args []string) string {
	redacted := make([]string, len(args))
	copy(redacted, args)
	for i := 0; i < len(redacted)-1; i++ {
		if redacted[i] == "-U" || redacted[i] == "-P" {
			redacted[i+1] = "___"
		}
	}

	return binary + " " + strings.Join(redacted, " ")
}
