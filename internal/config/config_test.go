package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FromEnvFile(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	content := "DATABASE_DRIVER=sqlite\nDATABASE_URL=file::memory:\nJWT_SECRET=s3cret\nADMIN_PASSWORD=admin\nALLOWED_ORIGINS=http://a.test, http://b.test\nRATE_LIMIT_INTERVAL=2s\n"
	req.NoError(os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600))

	cfg, err := LoadConfig(dir)
	req.NoError(err)

	req.Equal("sqlite", cfg.DatabaseDriver)
	req.Equal("s3cret", cfg.JWTSecret)
	req.Equal([]string{"http://a.test", "http://b.test"}, cfg.Origins())
	req.Equal(2*time.Second, cfg.RateLimitInterval)

	// Defaults are kept for unset keys
	req.Equal(":8080", cfg.HTTPAddr)
	req.Equal("General", cfg.DefaultRoom)
	req.EqualValues(4096, cfg.MaxMessageSize)
	req.Equal(5, cfg.RateLimitBurst)
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DATABASE_URL=x\n"), 0o600))

	_, err := LoadConfig(dir)
	require.ErrorContains(t, err, "JWT_SECRET")
}
