package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "marketwatch", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Empty(t, cfg.Server.AdminToken)
	assert.Empty(t, cfg.Database.DSN)
	assert.Equal(t, "https://apis.data.go.kr/1160100/service/GetMarketIndexInfoService", cfg.API.IndexBaseURL)
	assert.Equal(t, "https://www.koreaexim.go.kr/site/program/financial/exchangeJSON", cfg.API.RateBaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, int64(12345), cfg.Sync.AdvisoryLockKey)
	assert.Equal(t, 200*time.Millisecond, cfg.Sync.SeedDelay)
	assert.Equal(t, 100000, cfg.Export.MaxDataPoints)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("MARKETWATCH_DATABASE_DSN", "postgres://local/marketwatch")
	t.Setenv("MARKETWATCH_API_INDEX_KEY", "idx-secret")
	t.Setenv("MARKETWATCH_SERVER_ADMIN_TOKEN", "admin-secret")
	t.Setenv("MARKETWATCH_SYNC_SEED_DELAY", "50ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://local/marketwatch", cfg.Database.DSN)
	assert.Equal(t, "idx-secret", cfg.API.IndexKey)
	assert.Equal(t, "admin-secret", cfg.Server.AdminToken)
	assert.Equal(t, 50*time.Millisecond, cfg.Sync.SeedDelay)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  listen_addr: ":9090"
api:
  request_timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, "marketwatch", cfg.App.Name, "unset keys keep defaults")
}

func TestLoadRejectsInvalidTimeout(t *testing.T) {
	t.Setenv("MARKETWATCH_API_REQUEST_TIMEOUT", "0s")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request_timeout")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{ListenAddr: ":8080"},
			API:    APIConfig{RequestTimeout: time.Second},
			Export: ExportConfig{MaxDataPoints: 100},
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Server.ListenAddr = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Sync.SeedDelay = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Export.MaxDataPoints = 0
	assert.Error(t, cfg.Validate())
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 500}}
	assert.Equal(t, 500, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 50, cfg.ResolveMaxPoints(50))
}
