// Package profile holds connection configuration, named profiles, and
// session history, persisted as a YAML file in the user's home directory.
package profile

import (
	"fmt"
	"time"

	"github.com/shaunagostinho/obdlink/internal/elm"
	"github.com/shaunagostinho/obdlink/internal/transport"
)

// ConnectionConfig describes how to reach and drive one adapter. Immutable
// once a connection is established; changing it requires a reconnect.
type ConnectionConfig struct {
	Port            string  `yaml:"port" json:"port"` // device path, host:port, or "auto"
	BaudRate        int     `yaml:"baud_rate" json:"baudRate"`
	TimeoutSec      float64 `yaml:"timeout_sec" json:"timeoutSec"`
	Protocol        string  `yaml:"protocol" json:"protocol"`
	AutoDetect      bool    `yaml:"auto_detect" json:"autoDetect"`
	MaxRetries      int     `yaml:"max_retries" json:"maxRetries"`
	KeepAliveSec    float64 `yaml:"keep_alive_sec" json:"keepAliveSec"`       // 0 = per-transport default
	RetryBackoffSec float64 `yaml:"retry_backoff_sec" json:"retryBackoffSec"` // 0 = per-transport default
}

// DefaultConnectionConfig mirrors the defaults shipped in the "auto"
// profile: adapter auto-discovery, standard clone baud rate, three
// reconnect attempts.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Port:       "auto",
		BaudRate:   38400,
		TimeoutSec: 5,
		Protocol:   "auto",
		AutoDetect: true,
		MaxRetries: 3,
	}
}

// Validate rejects configurations that can never connect. These are fatal
// and never retried.
func (c ConnectionConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port must be a device path, host:port, or \"auto\"")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", c.BaudRate)
	}
	if c.TimeoutSec <= 0 {
		return fmt.Errorf("timeout_sec must be positive, got %v", c.TimeoutSec)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if _, err := elm.ParseProtocol(c.Protocol); err != nil {
		return err
	}
	return nil
}

// ParsedProtocol returns the protocol selector. Call Validate first.
func (c ConnectionConfig) ParsedProtocol() elm.Protocol {
	p, _ := elm.ParseProtocol(c.Protocol)
	return p
}

// Timeout is the per-command round-trip bound.
func (c ConnectionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec * float64(time.Second))
}

// KeepAlive returns the idle interval before a keep-alive probe. Zero in
// the profile means the per-transport-class default: Bluetooth SPP links
// idle out faster than USB cables or TCP bridges.
func (c ConnectionConfig) KeepAlive(kind transport.Kind) time.Duration {
	if c.KeepAliveSec > 0 {
		return time.Duration(c.KeepAliveSec * float64(time.Second))
	}
	switch kind {
	case transport.KindBluetooth:
		return 15 * time.Second
	case transport.KindTCP:
		return 20 * time.Second
	default:
		return 30 * time.Second
	}
}

// RetryBackoff returns the base reconnect delay, doubled per attempt.
// Bluetooth gets a longer base to leave room for SPP re-pairing.
func (c ConnectionConfig) RetryBackoff(kind transport.Kind) time.Duration {
	if c.RetryBackoffSec > 0 {
		return time.Duration(c.RetryBackoffSec * float64(time.Second))
	}
	if kind == transport.KindBluetooth {
		return 3 * time.Second
	}
	return 2 * time.Second
}
