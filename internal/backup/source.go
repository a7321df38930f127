package backup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fleetsink-io/fleetsink/internal/pkg/metrics"
	"github.com/fleetsink-io/fleetsink/pkg/fleetapi"
	"github.com/fleetsink-io/fleetsink/pkg/log"
)

// DataSource is what one sync cycle needs from the fleet server.
type DataSource interface {
	ListDevices(ctx context.Context) ([]fleetapi.Device, error)

	// FetchSnapshots returns the latest status and odometer reading per
	// device id. Devices without data are simply absent from the maps.
	// Snapshots gathered before a mid-fetch failure are returned alongside
	// the error.
	FetchSnapshots(ctx context.Context, devices []fleetapi.Device) (map[string]fleetapi.StatusInfo, map[string]fleetapi.DiagnosticReading, error)
}

// apiClient is the slice of the fleet client the source depends on.
type apiClient interface {
	Get(ctx context.Context, typeName string, search map[string]any, out any) error
	MultiCallChunked(ctx context.Context, calls []fleetapi.Call, limit int) ([]json.RawMessage, error)
}

// APISource implements DataSource over the fleet server's batched RPC
// interface.
type APISource struct {
	client     apiClient
	batchLimit int
}

var _ DataSource = (*APISource)(nil)

func NewAPISource(client apiClient, batchLimit int) *APISource {
	if batchLimit <= 0 || batchLimit > fleetapi.MaxCallsPerBatch {
		batchLimit = fleetapi.MaxCallsPerBatch
	}
	return &APISource{client: client, batchLimit: batchLimit}
}

func (s *APISource) ListDevices(ctx context.Context) ([]fleetapi.Device, error) {
	var devices []fleetapi.Device
	if err := s.client.Get(ctx, fleetapi.TypeDevice, nil, &devices); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// FetchSnapshots issues two sub-queries per device: its current status and
// its odometer history from the beginning of time. Sub-queries travel in
// composite batches of at most batchLimit, so n devices cost
// ceil(2n/batchLimit) round trips.
func (s *APISource) FetchSnapshots(ctx context.Context, devices []fleetapi.Device) (map[string]fleetapi.StatusInfo, map[string]fleetapi.DiagnosticReading, error) {
	calls := make([]fleetapi.Call, 0, 2*len(devices))
	for _, d := range devices {
		calls = append(calls,
			fleetapi.Call{
				Type:   fleetapi.TypeStatusInfo,
				Search: map[string]any{"deviceId": d.ID},
			},
			fleetapi.Call{
				Type: fleetapi.TypeDiagnostic,
				Search: map[string]any{
					"deviceId":   d.ID,
					"diagnostic": fleetapi.DiagnosticOdometer,
					"from":       fleetapi.EarliestDate,
				},
			},
		)
	}

	results, fetchErr := s.client.MultiCallChunked(ctx, calls, s.batchLimit)

	issued := (len(results) + s.batchLimit - 1) / s.batchLimit
	if fetchErr != nil {
		issued++ // the failing batch produced no results
	}
	metrics.BatchesTotal.Add(float64(issued))

	// Decode whatever came back, even when a later batch failed. Results
	// line up with the calls slice, but device attribution relies on the
	// ids embedded in the payloads, not on position.
	statuses := make(map[string]fleetapi.StatusInfo, len(devices))
	odometers := make(map[string]fleetapi.DiagnosticReading, len(devices))
	for i, raw := range results {
		switch calls[i].Type {
		case fleetapi.TypeStatusInfo:
			var items []fleetapi.StatusInfo
			if err := json.Unmarshal(raw, &items); err != nil {
				log.Warn("Dropping undecodable status result", "index", i, "error", err)
				continue
			}
			for _, it := range items {
				if cur, ok := statuses[it.DeviceID]; !ok || it.Timestamp.After(cur.Timestamp) {
					statuses[it.DeviceID] = it
				}
			}
		case fleetapi.TypeDiagnostic:
			var items []fleetapi.DiagnosticReading
			if err := json.Unmarshal(raw, &items); err != nil {
				log.Warn("Dropping undecodable odometer result", "index", i, "error", err)
				continue
			}
			for _, it := range items {
				if cur, ok := odometers[it.DeviceID]; !ok || it.Timestamp.After(cur.Timestamp) {
					odometers[it.DeviceID] = it
				}
			}
		}
	}

	if fetchErr != nil {
		return statuses, odometers, fmt.Errorf("fetch snapshots: %w", fetchErr)
	}
	return statuses, odometers, nil
}
