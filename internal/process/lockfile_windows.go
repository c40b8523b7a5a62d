//go:build windows
// +build windows

package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	constants "vpsdash/config"
)

// ErrAlreadyRunning is returned when another agent holds the PID lock
var ErrAlreadyRunning = errors.New("another vpsdash daemon is already running")

// LockFile is an exclusively created PID file. Windows has no flock, so a
// file left behind by a crash must be removed by hand.
type LockFile struct {
	path string
	f    *os.File
}

// DefaultPIDFile returns the PID file under the temp dir
func DefaultPIDFile() string {
	return filepath.Join(os.TempDir(), constants.SERVICE_NAME+".pid")
}

// Acquire exclusively creates the PID file
func Acquire(pidFile string) (*LockFile, error) {
	if pidFile == "" {
		pidFile = DefaultPIDFile()
	}
	f, err := os.OpenFile(pidFile, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("failed to open PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		os.Remove(pidFile)
		return nil, fmt.Errorf("failed to write PID: %w", err)
	}
	return &LockFile{path: pidFile, f: f}, nil
}

// Path is the locked PID file
func (lf *LockFile) Path() string { return lf.path }

// Release closes and removes the PID file
func (lf *LockFile) Release() error {
	if lf.f == nil {
		return nil
	}
	lf.f.Close()
	lf.f = nil
	return os.Remove(lf.path)
}

// Check reports whether the PID file exists, and the PID it names
func Check(pidFile string) (bool, int, error) {
	if pidFile == "" {
		pidFile = DefaultPIDFile()
	}
	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return true, pid, nil
}

// IsAgentProcess cannot inspect command lines on Windows
func IsAgentProcess(pid int) bool {
	return pid > 0
}
