package fleetapi

import (
	"time"
)

// Type names understood by the server's Get and MultiCall methods.
const (
	TypeDevice     = "Device"
	TypeStatusInfo = "StatusInfo"
	TypeDiagnostic = "DiagnosticReading"
)

// DiagnosticOdometer is the diagnostic type filter selecting odometer
// readings.
const DiagnosticOdometer = "Odometer"

// EarliestDate is the lower time bound used when a query should cover the
// device's whole history. The zero time marshals as 0001-01-01T00:00:00Z,
// which the server treats as "from the beginning".
var EarliestDate time.Time

// Device is one vehicle tracker known to the fleet server.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	VIN  string `json:"vin,omitempty"`
}

// StatusInfo is a position report. Timestamp is null on the wire when the
// device has never reported, which decodes to the zero time.
type StatusInfo struct {
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// DiagnosticReading is one sample of a diagnostic channel. For the odometer
// channel Value is the raw measure in meters.
type DiagnosticReading struct {
	DeviceID   string    `json:"deviceId"`
	Diagnostic string    `json:"diagnostic"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
}

// Call is one sub-query inside a composite MultiCall request.
type Call struct {
	Type   string         `json:"type"`
	Search map[string]any `json:"search,omitempty"`
}
