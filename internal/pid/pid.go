// Package pid guards against two agents sampling the same sensors.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/envirod/internal/errors"
)

const (
	pidFile = "envirod.pid"
)

// Path returns the pid file location inside dir, or the temp dir when dir
// is empty.
func Path(dir string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, pidFile)
}

// Write records the current process ID. A file naming another live process
// fails with ErrAlreadyRunning; stale or unreadable files are replaced.
func Write(dir string) error {
	errFactory := errors.New()
	self := os.Getpid()
	path := Path(dir)

	if bytes, err := os.ReadFile(path); err == nil {
		other, convErr := strconv.Atoi(strings.TrimSpace(string(bytes)))
		if convErr == nil && other != self && alive(other) {
			return errFactory.WithData(errors.ErrAlreadyRunning, other)
		}
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(self)), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func Remove(dir string) error {
	if err := os.Remove(Path(dir)); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}
	return nil
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
