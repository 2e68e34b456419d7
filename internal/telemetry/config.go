package telemetry

import "codeberg.org/mutker/ipmifanctl/internal/errors"

const (
	defaultDirPerm      = 0o755
	defaultDBPath       = "/var/lib/ipmifanctl/telemetry.db"
	defaultBatchSize    = 16
	defaultBatchTimeout = 60
)

type Config struct {
	DBPath       string
	BatchSize    int
	BatchTimeout int
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize <= 0 || c.BatchTimeout <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "batch size and timeout must be positive")
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
