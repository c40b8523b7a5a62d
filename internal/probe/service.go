package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	dockerclient "github.com/docker/docker/client"
	"github.com/shirou/gopsutil/v4/process"
)

// Service state sources
const (
	SourceSystemd = "systemd"
	SourceProcess = "process"
	SourceDocker  = "docker"
)

// ErrDockerUnavailable is returned when the Docker daemon cannot be reached
var ErrDockerUnavailable = errors.New("docker: daemon unavailable")

// StateSource reports whether a named unit is up. A non-nil error means the
// state could not be determined at all.
type StateSource interface {
	State(ctx context.Context, unit string) (state string, active bool, err error)
}

// ServiceUp reports OK when its unit is active and CRIT otherwise
type ServiceUp struct {
	name   string
	unit   string
	source StateSource
}

func NewServiceUp(name, unit string, source StateSource) *ServiceUp {
	return &ServiceUp{name: name, unit: unit, source: source}
}

func (p *ServiceUp) Name() string { return p.name }

func (p *ServiceUp) Sample(ctx context.Context) Result {
	state, active, err := p.source.State(ctx, p.unit)
	if err != nil {
		return Unknown(p.name, fmt.Errorf("%s state: %w", p.unit, err))
	}
	if active {
		return NewResult(p.name, StatusOK, state, fmt.Sprintf("%s is %s", p.unit, state))
	}
	return NewResult(p.name, StatusCrit, state, fmt.Sprintf("%s is %s", p.unit, state))
}

// SystemdSource asks systemctl is-active
type SystemdSource struct {
	Run CommandRunner
}

func (s SystemdSource) State(ctx context.Context, unit string) (string, bool, error) {
	run := s.Run
	if run == nil {
		run = ExecRunner
	}

	out, err := run(ctx, "systemctl", "is-active", unit)
	state := strings.TrimSpace(string(out))
	if err != nil {
		// is-active exits non-zero for inactive/failed units and still prints the state
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && state != "" {
			return state, false, nil
		}
		return "", false, err
	}
	return state, state == "active", nil
}

// ProcessSource considers a unit up when a process with that name exists
type ProcessSource struct{}

func (ProcessSource) State(ctx context.Context, unit string) (string, bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return "", false, fmt.Errorf("list processes: %w", err)
	}

	count := 0
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if name == unit {
			count++
		}
	}
	if count == 0 {
		return "not running", false, nil
	}
	return fmt.Sprintf("running (%d processes)", count), true, nil
}

// containerInspector is the slice of the Docker API the probe needs
type containerInspector interface {
	containerStatus(ctx context.Context, name string) (string, error)
}

type dockerInspector struct {
	client *dockerclient.Client
}

func (d dockerInspector) containerStatus(ctx context.Context, name string) (string, error) {
	info, err := d.client.ContainerInspect(ctx, name)
	if err != nil {
		return "", err
	}
	if info.State == nil {
		return "unknown", nil
	}
	return info.State.Status, nil
}

// DockerSource reads a container's state from the Docker daemon. The client
// is created on first use so hosts without Docker only fail the probes that
// ask for it.
type DockerSource struct {
	once      sync.Once
	inspector containerInspector
	initErr   error
}

func (s *DockerSource) init() {
	dc, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		s.initErr = fmt.Errorf("%w: %s", ErrDockerUnavailable, err)
		return
	}
	s.inspector = dockerInspector{client: dc}
}

func (s *DockerSource) State(ctx context.Context, container string) (string, bool, error) {
	s.once.Do(func() {
		if s.inspector == nil {
			s.init()
		}
	})
	if s.initErr != nil {
		return "", false, s.initErr
	}

	status, err := s.inspector.containerStatus(ctx, container)
	if err != nil {
		if dockerclient.IsErrNotFound(err) {
			return "missing", false, nil
		}
		if dockerclient.IsErrConnectionFailed(err) {
			return "", false, fmt.Errorf("%w: %s", ErrDockerUnavailable, err)
		}
		return "", false, err
	}
	return status, status == "running", nil
}
