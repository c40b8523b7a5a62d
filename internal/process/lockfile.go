//go:build !windows
// +build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	constants "vpsdash/config"
	"vpsdash/internal/logger"
)

// ErrAlreadyRunning is returned when another agent holds the PID lock
var ErrAlreadyRunning = errors.New("another vpsdash daemon is already running")

// LockFile represents an exclusive lock on a PID file
type LockFile struct {
	path string
	fd   int
}

// DefaultPIDFile prefers the per-user runtime dir and falls back to the
// shared default
func DefaultPIDFile() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" && os.Getuid() != 0 {
		return filepath.Join(runtimeDir, constants.SERVICE_NAME+".pid")
	}
	return constants.PID_FILE
}

// Acquire creates and locks the PID file. It fails fast with
// ErrAlreadyRunning while another live process holds the lock.
func Acquire(pidFile string) (*LockFile, error) {
	return acquire(pidFile, true)
}

func acquire(pidFile string, retryStale bool) (*LockFile, error) {
	if pidFile == "" {
		pidFile = DefaultPIDFile()
	}

	if err := os.MkdirAll(filepath.Dir(pidFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}

	// Open without truncating; the old PID stays readable until we hold the lock
	fd, err := syscall.Open(pidFile, syscall.O_RDWR|syscall.O_CREAT, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open PID file: %w", err)
	}

	if err := syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		syscall.Close(fd)

		if isStale, stalePID := checkStaleLock(pidFile); isStale && retryStale {
			logger.Info("Cleaning up stale PID file (process %d no longer exists)", stalePID)
			os.Remove(pidFile)
			return acquire(pidFile, false)
		}
		return nil, ErrAlreadyRunning
	}

	if err := syscall.Ftruncate(fd, 0); err != nil {
		syscall.Flock(fd, syscall.LOCK_UN)
		syscall.Close(fd)
		return nil, fmt.Errorf("failed to truncate PID file: %w", err)
	}

	pid := fmt.Sprintf("%d\n", os.Getpid())
	if _, err := syscall.Write(fd, []byte(pid)); err != nil {
		syscall.Flock(fd, syscall.LOCK_UN)
		syscall.Close(fd)
		return nil, fmt.Errorf("failed to write PID: %w", err)
	}

	logger.Debug("Acquired PID file lock: %s (PID: %d)", pidFile, os.Getpid())

	// fd stays open for the lifetime of the lock
	return &LockFile{path: pidFile, fd: fd}, nil
}

// Path is the locked PID file
func (lf *LockFile) Path() string { return lf.path }

// Release releases the lock and removes the PID file
func (lf *LockFile) Release() error {
	if lf.fd <= 0 {
		return nil
	}

	logger.Debug("Releasing PID file lock: %s", lf.path)

	syscall.Flock(lf.fd, syscall.LOCK_UN)
	syscall.Close(lf.fd)
	os.Remove(lf.path)

	lf.fd = 0
	return nil
}

// Check reports whether a live process holds the lock on pidFile, and its PID
func Check(pidFile string) (bool, int, error) {
	if pidFile == "" {
		pidFile = DefaultPIDFile()
	}

	fd, err := syscall.Open(pidFile, syscall.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("failed to open PID file: %w", err)
	}
	defer syscall.Close(fd)

	if err := syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return true, readPIDFromFd(fd), nil
	}

	// nobody holds it: stale file
	syscall.Flock(fd, syscall.LOCK_UN)
	return false, 0, nil
}

// checkStaleLock reports whether pidFile exists but is not locked
func checkStaleLock(pidFile string) (bool, int) {
	fd, err := syscall.Open(pidFile, syscall.O_RDONLY, 0)
	if err != nil {
		return false, 0
	}
	defer syscall.Close(fd)

	if err := syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return false, 0
	}
	syscall.Flock(fd, syscall.LOCK_UN)

	return true, readPIDFromFd(fd)
}

func readPIDFromFd(fd int) int {
	buf := make([]byte, 32)
	n, err := syscall.Read(fd, buf)
	if err != nil || n == 0 {
		return 0
	}

	var pid int
	fmt.Sscanf(string(buf[:n]), "%d", &pid)
	return pid
}

// IsAgentProcess verifies that pid is a vpsdash daemon, guarding against
// PID reuse
func IsAgentProcess(pid int) bool {
	if pid <= 0 {
		return false
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return false
	}
	cmdline := strings.ToLower(strings.ReplaceAll(string(data), "\x00", " "))
	return strings.Contains(cmdline, constants.SERVICE_NAME) &&
		strings.Contains(cmdline, "daemon")
}
