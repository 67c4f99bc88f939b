package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	cfile := filepath.Join(dir, "prodauth.yml")
	content := `
system:
  workdir: ` + dir + `
web:
  port: 9000
chain:
  chain_id: "5777"
  rpc_url: http://127.0.0.1:8545
qrcode:
  level: high
`
	require.NoError(t, os.WriteFile(cfile, []byte(content), 0600))

	cfg, err := LoadConfig(cfile)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Web.Port)
	assert.Equal(t, "5777", cfg.Chain.ChainID)
	assert.Equal(t, "high", cfg.Qrcode.Level)
	// untouched keys keep their defaults
	assert.Equal(t, "ProdAuth", cfg.Chain.Contract)
	assert.Equal(t, 10, cfg.Qrcode.BoxSize)
	assert.DirExists(t, cfg.GetLogDir())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PRODAUTH_SYSTEM_WORKER_DIR", dir)
	t.Setenv("PRODAUTH_WEB_PORT", "8088")
	t.Setenv("PRODAUTH_DB_DEBUG", "true")
	t.Setenv("WEB3_INFURA_PROJECT_ID", "proj")
	t.Setenv("WEB3_INFURA_API_SECRET", "sekret")

	cfg, err := LoadConfig(filepath.Join(dir, "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.System.Workdir)
	assert.Equal(t, 8088, cfg.Web.Port)
	assert.True(t, cfg.Database.Debug)
	assert.Equal(t, "https://:sekret@ropsten.infura.io/v3/proj", cfg.ProviderURL())
}

func TestConfigStringMasksSecrets(t *testing.T) {
	cfg := *DefaultAppConfig
	cfg.Chain.APISecret = "topsecret"
	cfg.Database.Passwd = "dbpass"

	out := cfg.String()
	assert.NotContains(t, out, "topsecret")
	assert.NotContains(t, out, "dbpass")
	assert.Contains(t, out, "******")
}
