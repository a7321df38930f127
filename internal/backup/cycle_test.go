package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/fleetsink-io/fleetsink/pkg/fleetapi"
)

// fakeSource is the in-memory DataSource used throughout the cycle tests.
type fakeSource struct {
	devices   []fleetapi.Device
	statuses  map[string]fleetapi.StatusInfo
	odometers map[string]fleetapi.DiagnosticReading

	listErr  error
	fetchErr error
}

func (f *fakeSource) ListDevices(ctx context.Context) ([]fleetapi.Device, error) {
	return f.devices, f.listErr
}

func (f *fakeSource) FetchSnapshots(ctx context.Context, devices []fleetapi.Device) (map[string]fleetapi.StatusInfo, map[string]fleetapi.DiagnosticReading, error) {
	if f.fetchErr != nil {
		return nil, nil, f.fetchErr
	}
	return f.statuses, f.odometers, nil
}

func newTestOrchestrator(src DataSource, dir string, units UnitSystem) *Orchestrator {
	return NewOrchestrator(src, NewTracker(), NewWriter(dir), units, 4)
}

func TestRunCycleWritesChangedDevices(t *testing.T) {
	t1 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{
		devices: []fleetapi.Device{{ID: "d1", VIN: "V1"}, {ID: "d2", VIN: "V2"}},
		statuses: map[string]fleetapi.StatusInfo{
			"d1": {DeviceID: "d1", Timestamp: t1, Latitude: 1, Longitude: 2},
			"d2": {DeviceID: "d2", Timestamp: t1, Latitude: 3, Longitude: 4},
		},
		odometers: map[string]fleetapi.DiagnosticReading{
			"d1": {DeviceID: "d1", Value: 5000},
		},
	}
	o := newTestOrchestrator(src, t.TempDir(), Metric)

	report, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.DevicesSeen != 2 || report.DevicesWritten() != 2 {
		t.Errorf("report = %+v, want 2 seen and 2 written", report)
	}
	if report.ID == "" {
		t.Error("report has no cycle id")
	}

	d1 := readLines(t, o.writer.Path("d1"))
	if want := "d1,2026-05-01T08:00:00.0000000Z,V1,1,2,5"; d1[1] != want {
		t.Errorf("d1 row = %q, want %q", d1[1], want)
	}
	// d2 never reported an odometer; the field stays empty.
	d2 := readLines(t, o.writer.Path("d2"))
	if want := "d2,2026-05-01T08:00:00.0000000Z,V2,3,4,"; d2[1] != want {
		t.Errorf("d2 row = %q, want %q", d2[1], want)
	}
}

func TestRunCycleSuppressesDuplicates(t *testing.T) {
	t1 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{
		devices:  []fleetapi.Device{{ID: "d1"}},
		statuses: map[string]fleetapi.StatusInfo{"d1": {DeviceID: "d1", Timestamp: t1}},
	}
	o := newTestOrchestrator(src, t.TempDir(), Metric)

	if _, err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	report, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if report.DevicesWritten() != 0 {
		t.Errorf("unchanged device written again: %+v", report)
	}
	if lines := readLines(t, o.writer.Path("d1")); len(lines) != 2 {
		t.Errorf("file has %d lines after duplicate cycle, want 2", len(lines))
	}
}

func TestRunCycleSkipsDevicesWithoutUsableStatus(t *testing.T) {
	t1 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{
		devices: []fleetapi.Device{{ID: "silent"}, {ID: "nullts"}, {ID: "ok"}},
		statuses: map[string]fleetapi.StatusInfo{
			"nullts": {DeviceID: "nullts"}, // zero timestamp
			"ok":     {DeviceID: "ok", Timestamp: t1},
		},
	}
	o := newTestOrchestrator(src, t.TempDir(), Metric)

	report, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.DevicesWritten() != 1 || report.Written[0] != "ok" {
		t.Errorf("written = %v, want [ok]", report.Written)
	}
}

func TestRunCycleEmptyFleetIsNoop(t *testing.T) {
	o := newTestOrchestrator(&fakeSource{}, t.TempDir(), Metric)

	report, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.DevicesSeen != 0 || report.DevicesWritten() != 0 {
		t.Errorf("report = %+v, want a zero no-op report", report)
	}
}

func TestRunCycleListErrorPropagates(t *testing.T) {
	wantErr := &fleetapi.Error{Kind: fleetapi.KindTransient, Op: "Get", Message: "down"}
	o := newTestOrchestrator(&fakeSource{listErr: fmt.Errorf("list devices: %w", wantErr)}, t.TempDir(), Metric)

	_, err := o.RunCycle(context.Background())
	if fleetapi.KindOf(err) != fleetapi.KindTransient {
		t.Errorf("error = %v, want the transport error to pass through", err)
	}
}

func TestRunCycleFetchErrorAbortsBeforeWrites(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		devices:  []fleetapi.Device{{ID: "d1"}},
		fetchErr: errors.New("fetch snapshots: broken"),
	}
	o := newTestOrchestrator(src, dir, Metric)

	if _, err := o.RunCycle(context.Background()); err == nil {
		t.Fatal("RunCycle swallowed the fetch error")
	}
	if _, err := os.Stat(o.writer.Path("d1")); err == nil {
		t.Error("rows written despite the aborted fetch")
	}
}

func TestRunCycleEndToEnd(t *testing.T) {
	t1 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(30 * time.Minute)

	src := &fakeSource{
		devices:   []fleetapi.Device{{ID: "d1", VIN: "V1"}},
		statuses:  map[string]fleetapi.StatusInfo{"d1": {DeviceID: "d1", Timestamp: t1, Latitude: 10, Longitude: 20}},
		odometers: map[string]fleetapi.DiagnosticReading{"d1": {DeviceID: "d1", Value: 5000}},
	}
	o := newTestOrchestrator(src, t.TempDir(), Metric)

	// Cycle 1: fresh device, one row.
	if report, err := o.RunCycle(context.Background()); err != nil || report.DevicesWritten() != 1 {
		t.Fatalf("cycle 1: report %+v, err %v", report, err)
	}
	lines := readLines(t, o.writer.Path("d1"))
	if len(lines) != 2 || lines[1] != "d1,2026-05-01T08:00:00.0000000Z,V1,10,20,5" {
		t.Fatalf("after cycle 1: %q", lines)
	}

	// Cycle 2: same timestamp, no new row.
	if report, err := o.RunCycle(context.Background()); err != nil || report.DevicesWritten() != 0 {
		t.Fatalf("cycle 2: report %+v, err %v", report, err)
	}

	// Cycle 3: the device moved and drove 2km.
	src.statuses["d1"] = fleetapi.StatusInfo{DeviceID: "d1", Timestamp: t2, Latitude: 11, Longitude: 21}
	src.odometers["d1"] = fleetapi.DiagnosticReading{DeviceID: "d1", Value: 7000}
	if report, err := o.RunCycle(context.Background()); err != nil || report.DevicesWritten() != 1 {
		t.Fatalf("cycle 3: report %+v, err %v", report, err)
	}

	lines = readLines(t, o.writer.Path("d1"))
	if len(lines) != 3 {
		t.Fatalf("after cycle 3 the file has %d lines, want 3", len(lines))
	}
	if want := "d1,2026-05-01T08:30:00.0000000Z,V1,11,21,7"; lines[2] != want {
		t.Errorf("cycle 3 row = %q, want %q", lines[2], want)
	}
}

func TestRunCycleImperialUnits(t *testing.T) {
	t1 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{
		devices:   []fleetapi.Device{{ID: "d1"}},
		statuses:  map[string]fleetapi.StatusInfo{"d1": {DeviceID: "d1", Timestamp: t1}},
		odometers: map[string]fleetapi.DiagnosticReading{"d1": {DeviceID: "d1", Value: 12345}},
	}
	o := newTestOrchestrator(src, t.TempDir(), Imperial)

	if _, err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	lines := readLines(t, o.writer.Path("d1"))
	if want := ",8"; lines[1][len(lines[1])-2:] != want {
		t.Errorf("imperial odometer column = %q, want row ending %q", lines[1], want)
	}
}

func TestRunCycleManyDevicesBoundedParallelism(t *testing.T) {
	t1 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{statuses: map[string]fleetapi.StatusInfo{}}
	for i := 0; i < 60; i++ {
		id := fmt.Sprintf("d%02d", i)
		src.devices = append(src.devices, fleetapi.Device{ID: id})
		src.statuses[id] = fleetapi.StatusInfo{DeviceID: id, Timestamp: t1}
	}

	o := NewOrchestrator(src, NewTracker(), NewWriter(t.TempDir()), Metric, 3)
	report, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.DevicesWritten() != 60 {
		t.Errorf("wrote %d devices, want 60", report.DevicesWritten())
	}
	for _, id := range report.Written {
		if lines := readLines(t, o.writer.Path(id)); len(lines) != 2 {
			t.Errorf("device %s file has %d lines", id, len(lines))
		}
	}
}
