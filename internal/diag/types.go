// Package diag implements the read-oriented diagnostic services: trouble
// codes, live parameter data, and vehicle identity. Every service talks
// to the adapter exclusively through the Querier contract — none ever
// holds the raw transport.
package diag

import (
	"context"
	"time"
)

// Querier is the slice of the connection manager the services depend on.
type Querier interface {
	Query(ctx context.Context, cmd string) (string, error)
}

// Severity classifies how urgently a trouble code needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Status is the ECU-side lifecycle of a trouble code.
type Status string

const (
	StatusActive  Status = "active"
	StatusPending Status = "pending"
	StatusStored  Status = "stored"
)

// DTCRecord is one decoded Diagnostic Trouble Code.
type DTCRecord struct {
	Code        string    `json:"code"` // e.g. "P0171"
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Status      Status    `json:"status"`
	FreezeFrame string    `json:"freezeFrame,omitempty"` // raw mode 02 payload, when captured
	DetectedAt  time.Time `json:"detectedAt"`
}

// LiveReading is one decoded parameter sample. Never mutated after
// creation; each poll cycle produces fresh readings.
type LiveReading struct {
	PID       string    `json:"pid"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Min       *float64  `json:"min,omitempty"` // expected range, when known
	Max       *float64  `json:"max,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WithinRange reports whether the value sits inside the expected range.
// Readings without known bounds are always in range.
func (r LiveReading) WithinRange() bool {
	if r.Min != nil && r.Value < *r.Min {
		return false
	}
	if r.Max != nil && r.Value > *r.Max {
		return false
	}
	return true
}

// VehicleInfo is the once-per-connection identity snapshot. The caller
// caches it for the connection's lifetime; it is invalid after a
// disconnect.
type VehicleInfo struct {
	VIN           string   `json:"vin"`
	Make          string   `json:"make,omitempty"`
	Model         string   `json:"model,omitempty"`
	Year          int      `json:"year,omitempty"`
	SupportedPIDs []string `json:"supportedPids"`
	CalibrationID string   `json:"calibrationId,omitempty"`
	CVN           string   `json:"cvn,omitempty"`
}
