package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/obdlink/internal/elm"
	"github.com/shaunagostinho/obdlink/internal/transport"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ConnectionConfig)
		wantErr bool
	}{
		{"defaults", func(*ConnectionConfig) {}, false},
		{"explicit port", func(c *ConnectionConfig) { c.Port = "/dev/ttyUSB0" }, false},
		{"tcp port", func(c *ConnectionConfig) { c.Port = "192.168.0.10:35000" }, false},
		{"empty port", func(c *ConnectionConfig) { c.Port = "" }, true},
		{"zero baud", func(c *ConnectionConfig) { c.BaudRate = 0 }, true},
		{"zero timeout", func(c *ConnectionConfig) { c.TimeoutSec = 0 }, true},
		{"negative retries", func(c *ConnectionConfig) { c.MaxRetries = -1 }, true},
		{"bad protocol", func(c *ConnectionConfig) { c.Protocol = "token_ring" }, true},
		{"named protocol", func(c *ConnectionConfig) { c.Protocol = "can_11_500" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConnectionConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParsedProtocol(t *testing.T) {
	cfg := DefaultConnectionConfig()
	assert.Equal(t, elm.ProtocolAuto, cfg.ParsedProtocol())

	cfg.Protocol = "iso_9141_2"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, elm.ProtocolISO9141, cfg.ParsedProtocol())
}

func TestTimeout(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.TimeoutSec = 2.5
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout())
}

func TestKeepAlivePerTransportClass(t *testing.T) {
	cfg := DefaultConnectionConfig()

	assert.Equal(t, 30*time.Second, cfg.KeepAlive(transport.KindUSB))
	assert.Equal(t, 15*time.Second, cfg.KeepAlive(transport.KindBluetooth))
	assert.Equal(t, 20*time.Second, cfg.KeepAlive(transport.KindTCP))

	cfg.KeepAliveSec = 7
	assert.Equal(t, 7*time.Second, cfg.KeepAlive(transport.KindBluetooth))
}

func TestRetryBackoffPerTransportClass(t *testing.T) {
	cfg := DefaultConnectionConfig()

	assert.Equal(t, 2*time.Second, cfg.RetryBackoff(transport.KindUSB))
	assert.Equal(t, 3*time.Second, cfg.RetryBackoff(transport.KindBluetooth))
	assert.Equal(t, 2*time.Second, cfg.RetryBackoff(transport.KindTCP))

	cfg.RetryBackoffSec = 0.5
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff(transport.KindBluetooth))
}
