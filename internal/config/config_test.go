package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 60, cfg.Health.Interval)
	assert.Equal(t, 2, cfg.Health.ProbeTimeout)
	assert.Equal(t, 60, cfg.Health.HistorySize)
	assert.Equal(t, 3, cfg.Backup.MaxAttempts)
	assert.Equal(t, StoreDir, cfg.Backup.Store.Kind)
	assert.Len(t, cfg.Probes, 3)
}

func TestLoadConfig_Probes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
probes:
  - name: root-disk
    kind: disk
    path: /
    warn: 70
    crit: 85
  - name: nginx
    kind: service
    service: nginx
    source: systemd
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Probes, 2)
	assert.Equal(t, 70.0, cfg.Probes[0].Warn)
	assert.Equal(t, "nginx", cfg.Probes[1].Service)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"duplicate probe", func(c *Config) { c.Probes = append(c.Probes, ProbeConfig{Name: "cpu", Kind: ProbeCPU}) }},
		{"reserved name", func(c *Config) { c.Probes = append(c.Probes, ProbeConfig{Name: "backup", Kind: ProbeCPU}) }},
		{"unknown kind", func(c *Config) { c.Probes = append(c.Probes, ProbeConfig{Name: "x", Kind: "smtp"}) }},
		{"warn above crit", func(c *Config) { c.Probes[0].Warn, c.Probes[0].Crit = 90, 80 }},
		{"no attempts", func(c *Config) { c.Backup.MaxAttempts = 0 }},
		{"unknown store", func(c *Config) { c.Backup.Store.Kind = "ftp" }},
		{"rclone without remote", func(c *Config) { c.Backup.Store.Kind = StoreRclone }},
	}

	assert.NoError(t, Default().Validate())

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Backup.Sources = []string{"/etc", "/srv/data"}

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Backup.Sources, loaded.Backup.Sources)
	assert.Equal(t, cfg.Probes, loaded.Probes)
}
