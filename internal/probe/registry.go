package probe

import (
	"fmt"

	constants "vpsdash/config"
	"vpsdash/internal/config"
)

// Build turns probe configuration into probes, in configuration order
func Build(cfgs []config.ProbeConfig) ([]Probe, error) {
	probes := make([]Probe, 0, len(cfgs))
	docker := &DockerSource{}

	for _, c := range cfgs {
		t := Thresholds{Warn: c.Warn, Crit: c.Crit}

		switch c.Kind {
		case config.ProbeCPU:
			probes = append(probes, NewCPULoad(c.Name, t))
		case config.ProbeMemory:
			probes = append(probes, NewMemoryUsage(c.Name, t))
		case config.ProbeDisk:
			probes = append(probes, NewDiskSpace(c.Name, c.Path, t))
		case config.ProbeService:
			var src StateSource
			switch c.Source {
			case "", SourceSystemd:
				src = SystemdSource{}
			case SourceProcess:
				src = ProcessSource{}
			case SourceDocker:
				src = docker
			default:
				return nil, fmt.Errorf("probe %s: unknown service source %q", c.Name, c.Source)
			}
			probes = append(probes, NewServiceUp(c.Name, c.Service, src))
		case config.ProbeLog:
			p, err := NewLogAnomaly(c.Name, c.Path, c.TailLines, c.Patterns, t)
			if err != nil {
				return nil, err
			}
			probes = append(probes, p)
		case config.ProbeBedrock:
			host, port := c.Host, c.Port
			if host == "" {
				host = constants.DEFAULT_BEDROCK_HOST
			}
			if port == 0 {
				port = constants.DEFAULT_BEDROCK_PORT
			}
			probes = append(probes, NewBedrockPing(c.Name, host, port))
		case config.ProbeWireGuard:
			probes = append(probes, NewWireGuardHandshake(c.Name, c.Iface, t, nil))
		default:
			return nil, fmt.Errorf("probe %s: unknown kind %q", c.Name, c.Kind)
		}
	}
	return probes, nil
}
