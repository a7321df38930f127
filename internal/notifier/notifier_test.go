package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fleetsink-io/fleetsink/internal/backup"
)

// recordingClient captures publishes; the other lifecycle methods are inert.
type recordingClient struct {
	published  []publishCall
	publishErr error
}

type publishCall struct {
	topic   string
	qos     int
	payload []byte
}

func (c *recordingClient) Start(ctx context.Context) error           { return nil }
func (c *recordingClient) Disconnect(ctx context.Context)            {}
func (c *recordingClient) AwaitConnection(ctx context.Context) error { return nil }

func (c *recordingClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	c.published = append(c.published, publishCall{topic: topic, qos: qos, payload: payload})
	return c.publishErr
}

func TestPublishCycleEmitsSummaryAndRecords(t *testing.T) {
	client := &recordingClient{}
	n := New(client, "fleetsink/v1")

	report := backup.CycleReport{
		ID:          "cycle-42",
		StartedAt:   time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		Elapsed:     1500 * time.Millisecond,
		DevicesSeen: 5,
		Written:     []string{"d1", "d3"},
	}
	n.PublishCycle(context.Background(), report, nil)

	if len(client.published) != 3 {
		t.Fatalf("published %d events, want summary + 2 records", len(client.published))
	}

	summary := client.published[0]
	if summary.topic != "fleetsink/v1/backup/summary" {
		t.Errorf("summary topic = %q", summary.topic)
	}
	if summary.qos != 1 {
		t.Errorf("summary qos = %d, want 1", summary.qos)
	}

	var ev summaryEvent
	if err := json.Unmarshal(summary.payload, &ev); err != nil {
		t.Fatalf("summary payload: %v", err)
	}
	if ev.Cycle != "cycle-42" || ev.Result != "success" || ev.DevicesWritten != 2 || ev.ElapsedMillis != 1500 {
		t.Errorf("summary event = %+v", ev)
	}

	if got := client.published[1].topic; got != "fleetsink/v1/backup/records/d1" {
		t.Errorf("first record topic = %q", got)
	}
	if got := client.published[2].topic; got != "fleetsink/v1/backup/records/d3" {
		t.Errorf("second record topic = %q", got)
	}
}

func TestPublishCycleReportsFailures(t *testing.T) {
	client := &recordingClient{}
	n := New(client, "fleetsink/v1")

	n.PublishCycle(context.Background(), backup.CycleReport{ID: "c1"}, errors.New("rate limited"))

	if len(client.published) != 1 {
		t.Fatalf("published %d events, want just the summary", len(client.published))
	}
	var ev summaryEvent
	if err := json.Unmarshal(client.published[0].payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Result != "failure" || ev.Error != "rate limited" {
		t.Errorf("summary event = %+v", ev)
	}
}

func TestPublishCycleSwallowsBrokerErrors(t *testing.T) {
	client := &recordingClient{publishErr: errors.New("broker gone")}
	n := New(client, "fleetsink/v1")

	report := backup.CycleReport{ID: "c1", Written: []string{"d1", "d2"}}
	n.PublishCycle(context.Background(), report, nil)

	// Every event is still attempted despite the failures.
	if len(client.published) != 3 {
		t.Errorf("attempted %d publishes, want 3", len(client.published))
	}
}
