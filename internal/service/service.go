package service

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/okzk/sdnotify"
	"github.com/takama/daemon"

	constants "vpsdash/config"
	"vpsdash/internal/logger"
)

// WatchdogInterval is how often the daemon pings the systemd watchdog
const WatchdogInterval = 5 * time.Minute

// Service wraps takama/daemon to register the agent with the host supervisor
type Service struct {
	daemon daemon.Daemon
}

// New creates a new Service instance
func New() (*Service, error) {
	// SystemDaemon needs root; UserAgent installs a per-user unit
	kind := daemon.UserAgent
	if os.Geteuid() == 0 {
		kind = daemon.SystemDaemon
	}

	d, err := daemon.New(constants.SERVICE_NAME, constants.SERVICE_DESCRIPTION, kind, "network-online.target")
	if err != nil {
		return nil, fmt.Errorf("failed to create daemon: %w", err)
	}

	return &Service{daemon: d}, nil
}

// Install registers "vpsdash daemon [args...]" with the supervisor.
// takama/daemon resolves the executable path itself.
func (s *Service) Install(args ...string) (string, error) {
	status, err := s.daemon.Install(append([]string{"daemon"}, args...)...)
	if err != nil {
		return status, err
	}

	logger.Info("Service installed: %s", status)
	return status, nil
}

// Remove removes the service
func (s *Service) Remove() (string, error) {
	status, err := s.daemon.Remove()
	if err != nil {
		return status, err
	}

	logger.Info("Service removed: %s", status)
	return status, nil
}

// Start starts the service
func (s *Service) Start() (string, error) {
	status, err := s.daemon.Start()
	if err != nil {
		return status, err
	}

	logger.Info("Service started: %s", status)
	return status, nil
}

// Stop stops the service
func (s *Service) Stop() (string, error) {
	status, err := s.daemon.Stop()
	if err != nil {
		return status, err
	}

	logger.Info("Service stopped: %s", status)
	return status, nil
}

// Status returns the service status
func (s *Service) Status() (string, error) {
	return s.daemon.Status()
}

// NotifyReady notifies systemd that service is ready (Type=notify)
func NotifyReady() {
	if runtime.GOOS == "linux" {
		if err := sdnotify.Ready(); err == nil {
			logger.Debug("Sent READY notification to systemd")
		}
	}
}

// NotifyStopping notifies systemd that service is stopping
func NotifyStopping() {
	if runtime.GOOS == "linux" {
		if err := sdnotify.Stopping(); err == nil {
			logger.Debug("Sent STOPPING notification to systemd")
		}
	}
}

// NotifyWatchdog sends watchdog ping to systemd
func NotifyWatchdog() {
	if runtime.GOOS == "linux" {
		_ = sdnotify.Watchdog()
	}
}

// NotifyStatus sends status message to systemd
func NotifyStatus(status string) {
	if runtime.GOOS == "linux" {
		_ = sdnotify.Status(status)
	}
}

// RunWatchdog pings the watchdog every interval until ctx is done. status,
// when set, is published alongside each ping.
func RunWatchdog(ctx context.Context, interval time.Duration, status func() string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			NotifyWatchdog()
			if status != nil {
				NotifyStatus(status())
			}
		}
	}
}
