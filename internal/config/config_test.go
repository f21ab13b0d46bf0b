package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 30, cfg.Retention.ExpiredDays)
	require.Equal(t, 90, cfg.Retention.ArchiveDays)
	require.Equal(t, 100, cfg.Retention.BatchSize)
	require.InDelta(t, 15.0, cfg.Resources.MinFreeDiskPercent, 0.001)
	require.InDelta(t, 85.0, cfg.Resources.MaxCPUPercent, 0.001)
	require.False(t, cfg.Redis.Enabled)
	require.True(t, cfg.Scrape.Tavily.Enabled)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
retention:
  expired_days: 14
  archive_days: 60
scrape:
  boards:
    - name: weworkremotely
      url: https://weworkremotely.example/jobs
      enabled: true
      selectors:
        card: li.feature
        link: a
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 14, cfg.Retention.ExpiredDays)
	require.Len(t, cfg.Scrape.Boards, 1)
	require.Equal(t, "weworkremotely", cfg.Scrape.Boards[0].Name)
	require.Equal(t, "li.feature", cfg.Scrape.Boards[0].Selectors.Card)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	t.Run("auth without key", func(t *testing.T) {
		cfg := base
		cfg.Auth.Enabled = true
		require.Error(t, cfg.Validate())
	})

	t.Run("archive window shorter than expiry", func(t *testing.T) {
		cfg := base
		cfg.Retention.ExpiredDays = 60
		cfg.Retention.ArchiveDays = 30
		require.Error(t, cfg.Validate())
	})

	t.Run("cpu threshold out of range", func(t *testing.T) {
		cfg := base
		cfg.Resources.MaxCPUPercent = 150
		require.Error(t, cfg.Validate())
	})

	t.Run("board without url", func(t *testing.T) {
		cfg := base
		cfg.Scrape.Boards = []BoardConfig{{Name: "x"}}
		require.Error(t, cfg.Validate())
	})
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("JOBINTEL_SERVER_PORT", "7070")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
}
