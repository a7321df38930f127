package backup

import (
	"strings"
	"testing"
	"time"
)

func TestConvertOdometer(t *testing.T) {
	tests := []struct {
		name  string
		units UnitSystem
		raw   float64
		want  string
	}{
		{"metric rounds down", Metric, 12345, "12"},
		{"metric exact", Metric, 5000, "5"},
		{"metric rounds up", Metric, 12900, "13"},
		{"imperial converts before rounding", Imperial, 12345, "8"}, // 12.345 km = 7.67 mi
		{"imperial exact-ish", Imperial, 160934.4, "100"},
		{"zero", Metric, 0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.units.ConvertOdometer(tt.raw)
			if got := formatOdometer(&v); got != tt.want {
				t.Errorf("ConvertOdometer(%v) formatted as %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFormatOdometerAbsent(t *testing.T) {
	if got := formatOdometer(nil); got != "" {
		t.Errorf("formatOdometer(nil) = %q, want empty", got)
	}
}

func TestParseUnitSystem(t *testing.T) {
	if u, err := ParseUnitSystem("imperial"); err != nil || u != Imperial {
		t.Errorf("ParseUnitSystem(imperial) = %v, %v", u, err)
	}
	if u, err := ParseUnitSystem("metric"); err != nil || u != Metric {
		t.Errorf("ParseUnitSystem(metric) = %v, %v", u, err)
	}
	if _, err := ParseUnitSystem("nautical"); err == nil {
		t.Error("ParseUnitSystem(nautical) accepted")
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 45, 123450000, time.UTC)

	s := formatTimestamp(ts)
	if !strings.HasSuffix(s, "Z") {
		t.Errorf("formatTimestamp(%v) = %q, timestamps must be UTC", ts, s)
	}

	back, err := time.Parse(TimestampLayout, s)
	if err != nil {
		t.Fatalf("written timestamp %q does not parse back: %v", s, err)
	}
	if !back.Equal(ts) {
		t.Errorf("round trip changed the instant: %v -> %q -> %v", ts, s, back)
	}
}

func TestTimestampNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	local := time.Date(2026, 3, 1, 15, 30, 45, 0, loc)

	want := "2026-03-01T12:30:45.0000000Z"
	if got := formatTimestamp(local); got != want {
		t.Errorf("formatTimestamp(%v) = %q, want %q", local, got, want)
	}
}

func TestRecordRow(t *testing.T) {
	odo := 12.345
	rec := Record{
		DeviceID:  "dev-7",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		VIN:       "1HGBH41JXMN109186",
		Latitude:  52.520008,
		Longitude: 13.404954,
		Odometer:  &odo,
	}

	got := rec.row()
	want := []string{"dev-7", "2026-01-02T03:04:05.0000000Z", "1HGBH41JXMN109186", "52.520008", "13.404954", "12"}
	if len(got) != len(want) {
		t.Fatalf("row() has %d fields, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
