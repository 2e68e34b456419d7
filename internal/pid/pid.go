package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
)

const (
	pidFile     = "ipmifanctl.pid"
	pidFilePerm = 0o644
)

// Write writes the current process ID to a PID file, refusing to start when
// another live instance already holds one.
func Write() error {
	errFactory := errors.New()
	pid := os.Getpid()
	path := filepath.Join(os.TempDir(), pidFile)

	if _, err := os.Stat(path); err == nil {
		bytes, err := os.ReadFile(path)
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}

		oldPid, err := strconv.Atoi(string(bytes))
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}

		process, err := os.FindProcess(oldPid)
		if err == nil {
			if err := process.Signal(syscall.Signal(0)); err == nil {
				return errFactory.WithData(errors.ErrAlreadyRunning, oldPid)
			}
		}
		// Stale PID file from a crashed instance; overwrite it.
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), pidFilePerm); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove deletes the PID file on shutdown.
func Remove() error {
	path := filepath.Join(os.TempDir(), pidFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
