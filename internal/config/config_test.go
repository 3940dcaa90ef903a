package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("daybetter:\n  user_code: abc123\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.DayBetter.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.DayBetter.Timeout.Duration())
	assert.Equal(t, 30*time.Second, cfg.Poll.NormalInterval.Duration())
	assert.Equal(t, 5*time.Second, cfg.Poll.BurstInterval.Duration())
	assert.Equal(t, 30*time.Second, cfg.Poll.BurstDuration.Duration())
	assert.Equal(t, 5*time.Minute, cfg.Poll.IdleTimeout.Duration())
	assert.Equal(t, "./daybetterd.sqlite", cfg.Database.Path)
	assert.Equal(t, DefaultLightPIDs, cfg.DayBetter.LightPIDs)
	assert.Equal(t, "info", cfg.Log.GetLevel())
	assert.Equal(t, 8080, cfg.API.Port)
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("DAYBETTER_CODE", "from-env")

	cfg, err := Parse([]byte(`
daybetter:
  user_code: ${DAYBETTER_CODE}
  base_url: ${DAYBETTER_URL:http://localhost:9999/}
poll:
  burst_duration: 45s
`))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.DayBetter.UserCode)
	assert.Equal(t, "http://localhost:9999", cfg.DayBetter.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Poll.BurstDuration.Duration())
}

func TestParseRequiresUserCode(t *testing.T) {
	_, err := Parse([]byte("log:\n  level: debug\n"))
	assert.ErrorIs(t, err, ErrMissingUserCode)
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, err := Parse([]byte("daybetter:\n  user_code: x\npoll:\n  tick: soon\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("daybetter:\n  user_code: file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.DayBetter.UserCode)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
