package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fleetsink-io/fleetsink/internal/backup"
)

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	router := newRouter(NewStatus())
	if rec := get(t, router, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", rec.Code)
	}
}

func TestReadyzFlipsAfterFirstSuccess(t *testing.T) {
	status := NewStatus()
	router := newRouter(status)

	if rec := get(t, router, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before any cycle = %d, want 503", rec.Code)
	}

	// A failed cycle does not make the agent ready.
	status.RecordCycle(backup.CycleReport{ID: "c1"}, errors.New("boom"))
	if rec := get(t, router, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz after failed cycle = %d, want 503", rec.Code)
	}

	status.RecordCycle(backup.CycleReport{ID: "c2"}, nil)
	if rec := get(t, router, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("/readyz after successful cycle = %d, want 200", rec.Code)
	}
}

func TestStatusz(t *testing.T) {
	status := NewStatus()
	status.SetState(backup.StateRunning)
	status.RecordCycle(backup.CycleReport{
		ID:          "cycle-1",
		StartedAt:   time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		DevicesSeen: 3,
		Written:     []string{"d1", "d2"},
	}, nil)

	rec := get(t, newRouter(status), "/statusz")
	if rec.Code != http.StatusOK {
		t.Fatalf("/statusz = %d, want 200", rec.Code)
	}

	var view View
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode status page: %v", err)
	}
	if view.State != backup.StateRunning || !view.Ready || view.CyclesCompleted != 1 {
		t.Errorf("status view = %+v", view)
	}
	if view.LastCycle == nil || view.LastCycle.DevicesSeen != 3 || len(view.LastCycle.Written) != 2 {
		t.Errorf("last cycle = %+v", view.LastCycle)
	}
}

func TestStatuszKeepsLastError(t *testing.T) {
	status := NewStatus()
	status.RecordCycle(backup.CycleReport{ID: "c1"}, errors.New("rate limited"))

	var view View
	rec := get(t, newRouter(status), "/statusz")
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.LastError != "rate limited" {
		t.Errorf("lastError = %q", view.LastError)
	}

	// The next success clears it.
	status.RecordCycle(backup.CycleReport{ID: "c2"}, nil)
	rec = get(t, newRouter(status), "/statusz")
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.LastError != "" {
		t.Errorf("lastError after success = %q", view.LastError)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newRouter(NewStatus()), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "go_goroutines") {
		t.Error("/metrics does not expose the runtime collectors")
	}
}
