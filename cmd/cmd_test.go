package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/obdlink/internal/profile"
)

func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		portFlag = ""
		baudFlag = 0
		protocolFlag = ""
		timeoutFlag = 0
		profileName = ""
	})
}

func tempStore(t *testing.T) *profile.Store {
	t.Helper()
	s, err := profile.Open(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	return s
}

func TestResolveConfigDefaults(t *testing.T) {
	resetFlags(t)

	cfg, err := resolveConfig(tempStore(t))
	require.NoError(t, err)
	assert.Equal(t, profile.DefaultConnectionConfig(), cfg)
}

func TestResolveConfigAppliesFlagOverrides(t *testing.T) {
	resetFlags(t)
	portFlag = "/dev/ttyUSB0"
	baudFlag = 115200
	protocolFlag = "can_11_500"
	timeoutFlag = 2

	cfg, err := resolveConfig(tempStore(t))
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Port)
	assert.Equal(t, 115200, cfg.BaudRate)
	assert.Equal(t, "can_11_500", cfg.Protocol)
	assert.False(t, cfg.AutoDetect)
	assert.InDelta(t, 2, cfg.TimeoutSec, 0.001)
}

func TestResolveConfigUnknownProfile(t *testing.T) {
	resetFlags(t)
	profileName = "missing"

	_, err := resolveConfig(tempStore(t))
	assert.Error(t, err)
}

func TestFormatProfile(t *testing.T) {
	cfg := profile.DefaultConnectionConfig()
	line := formatProfile("auto", cfg)

	assert.Contains(t, line, "port=auto")
	assert.Contains(t, line, "baud=38400")
	assert.Contains(t, line, "timeout=5s")
	assert.Contains(t, line, "retries=3")
}
