package backup

import (
	"fmt"
	"strconv"
	"time"
)

// TimestampLayout is the round-trip ISO-8601 form used in backup files. It
// keeps sub-second precision at seven digits so a written timestamp parses
// back to the same instant.
const TimestampLayout = "2006-01-02T15:04:05.0000000Z07:00"

const (
	metersPerKilometer = 1000.0
	kilometersPerMile  = 1.609344
)

// UnitSystem selects the distance unit written to the Odometer column.
type UnitSystem int

const (
	Metric UnitSystem = iota
	Imperial
)

// ParseUnitSystem maps the configuration strings "metric" and "imperial".
func ParseUnitSystem(s string) (UnitSystem, error) {
	switch s {
	case "metric":
		return Metric, nil
	case "imperial":
		return Imperial, nil
	default:
		return Metric, fmt.Errorf("unknown unit system %q", s)
	}
}

func (u UnitSystem) String() string {
	if u == Imperial {
		return "imperial"
	}
	return "metric"
}

// ConvertOdometer turns a raw odometer measure in meters into the configured
// distance unit, kilometers or miles.
func (u UnitSystem) ConvertOdometer(raw float64) float64 {
	km := raw / metersPerKilometer
	if u == Imperial {
		return km / kilometersPerMile
	}
	return km
}

// Record is one output row for one device. It lives only long enough to be
// appended to the device's file.
type Record struct {
	DeviceID  string
	Timestamp time.Time
	VIN       string
	Latitude  float64
	Longitude float64

	// Odometer is the converted distance reading. Nil when the device has
	// never reported one, which serializes as an empty column.
	Odometer *float64
}

// headerRow is the fixed first line of every device file.
func headerRow() []string {
	return []string{"Id", "Timestamp", "VIN", "Latitude", "Longitude", "Odometer"}
}

// row serializes the record in header order. All numeric formatting is
// locale-invariant so files are byte-stable across hosts.
func (r Record) row() []string {
	return []string{
		r.DeviceID,
		formatTimestamp(r.Timestamp),
		r.VIN,
		formatFloat(r.Latitude),
		formatFloat(r.Longitude),
		formatOdometer(r.Odometer),
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatOdometer rounds to whole distance units. Readings are kilometers (or
// miles) driven over a vehicle's life, so fractions carry no information.
func formatOdometer(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 0, 64)
}
