package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fleetsink-io/fleetsink/internal/backup"
	"github.com/fleetsink-io/fleetsink/internal/notifier"
	"github.com/fleetsink-io/fleetsink/internal/server"
	"github.com/fleetsink-io/fleetsink/pkg/options"
)

func testConfig(t *testing.T) *Config {
	t.Helper()

	fleet := options.NewFleetOptions()
	fleet.Server = "fleet.example.com"
	fleet.Database = "acme"
	fleet.Username = "backup"
	fleet.Password = "hunter2"

	output := options.NewOutputOptions()
	output.Dir = t.TempDir()

	return &Config{
		FleetOptions:  fleet,
		SyncOptions:   options.NewSyncOptions(),
		OutputOptions: output,
		HttpOptions:   options.NewHttpOptions(),
		MqttOptions:   options.NewMqttOptions(),
		S3Options:     options.NewS3Options(),
	}
}

func TestNewAgentDefaultsLeaveSideChannelsOff(t *testing.T) {
	a, err := testConfig(t).NewAgent()
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	if a.scheduler == nil || a.httpSrv == nil || a.status == nil || a.writer == nil {
		t.Fatal("core components not wired")
	}
	if a.mqttClient != nil || a.notifier != nil || a.mirror != nil {
		t.Error("side channels wired without configuration")
	}
}

func TestNewAgentDisablesOpsServerWithoutAddr(t *testing.T) {
	cfg := testConfig(t)
	cfg.HttpOptions.Addr = ""

	a, err := cfg.NewAgent()
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	if a.httpSrv != nil {
		t.Error("ops server wired despite empty address")
	}
}

func TestNewAgentRejectsUnknownUnits(t *testing.T) {
	cfg := testConfig(t)
	cfg.SyncOptions.Units = "furlongs"

	if _, err := cfg.NewAgent(); err == nil {
		t.Fatal("NewAgent accepted unknown unit system")
	}
}

func TestNewAgentRejectsBadBrokerURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.MqttOptions.Broker = "://not-a-url"

	_, err := cfg.NewAgent()
	if err == nil {
		t.Fatal("NewAgent accepted unparseable broker URL")
	}
	if !strings.Contains(err.Error(), "mqtt") {
		t.Errorf("error %q does not point at the mqtt client", err)
	}
}

func TestNewAgentWiresNotifierWhenBrokerSet(t *testing.T) {
	cfg := testConfig(t)
	cfg.MqttOptions.Broker = "mqtt://broker.example.com:1883"

	a, err := cfg.NewAgent()
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	if a.mqttClient == nil || a.notifier == nil {
		t.Error("mqtt side channel not wired despite broker address")
	}
}

type capturingClient struct {
	mu     sync.Mutex
	topics []string
}

func (c *capturingClient) Start(ctx context.Context) error           { return nil }
func (c *capturingClient) Disconnect(ctx context.Context)            {}
func (c *capturingClient) AwaitConnection(ctx context.Context) error { return nil }

func (c *capturingClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	return nil
}

func TestHandleReportFeedsStatusAndNotifier(t *testing.T) {
	client := &capturingClient{}
	status := server.NewStatus()
	a := &Agent{
		writer:   backup.NewWriter(t.TempDir()),
		status:   status,
		notifier: notifier.New(client, "fleetsink/v1"),
	}

	report := backup.CycleReport{
		ID:        "cycle-1",
		StartedAt: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
		Written:   []string{"d1", "d2"},
	}
	a.handleReport(report, nil)

	view := status.Snapshot()
	if view.CyclesCompleted != 1 || !view.Ready {
		t.Errorf("status after report: completed=%d ready=%v", view.CyclesCompleted, view.Ready)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.topics) != 3 {
		t.Fatalf("published %d messages, want summary plus two records", len(client.topics))
	}
	if client.topics[0] != "fleetsink/v1/backup/summary" {
		t.Errorf("first topic = %q", client.topics[0])
	}
}

func TestHandleReportWithoutSideChannels(t *testing.T) {
	status := server.NewStatus()
	a := &Agent{
		writer: backup.NewWriter(t.TempDir()),
		status: status,
	}

	a.handleReport(backup.CycleReport{ID: "cycle-1"}, nil)
	if status.Snapshot().CyclesCompleted != 1 {
		t.Error("cycle not recorded")
	}
}
