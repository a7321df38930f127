// Package notifier publishes backup cycle outcomes to the MQTT broker so
// downstream fleet tooling can react without polling the agent.
package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fleetsink-io/fleetsink/internal/backup"
	"github.com/fleetsink-io/fleetsink/internal/pkg/mqtt/paths"
	"github.com/fleetsink-io/fleetsink/pkg/log"
	"github.com/fleetsink-io/fleetsink/pkg/mqtt"
)

// qosAtLeastOnce is used for every event; duplicates are harmless to
// consumers that key on the cycle id.
const qosAtLeastOnce = 1

// Notifier turns cycle reports into MQTT events. Publish failures are
// logged, never propagated; telemetry must not break the backup loop.
type Notifier struct {
	client mqtt.Client
	root   string
}

func New(client mqtt.Client, topicRoot string) *Notifier {
	return &Notifier{client: client, root: topicRoot}
}

// summaryEvent is published once per cycle under {root}/backup/summary.
type summaryEvent struct {
	Cycle          string    `json:"cycle"`
	Result         string    `json:"result"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	ElapsedMillis  int64     `json:"elapsedMillis"`
	DevicesSeen    int       `json:"devicesSeen"`
	DevicesWritten int       `json:"devicesWritten"`
}

// recordEvent is published under {root}/backup/records/{deviceID} for every
// device that received a new row.
type recordEvent struct {
	Cycle    string `json:"cycle"`
	DeviceID string `json:"deviceId"`
}

// PublishCycle announces one finished cycle and each device it touched.
func (n *Notifier) PublishCycle(ctx context.Context, report backup.CycleReport, cycleErr error) {
	summary := summaryEvent{
		Cycle:          report.ID,
		Result:         "success",
		StartedAt:      report.StartedAt,
		ElapsedMillis:  report.Elapsed.Milliseconds(),
		DevicesSeen:    report.DevicesSeen,
		DevicesWritten: report.DevicesWritten(),
	}
	if cycleErr != nil {
		summary.Result = "failure"
		summary.Error = cycleErr.Error()
	}

	n.publish(ctx, paths.Join(n.root, paths.Summary), summary)

	for _, id := range report.Written {
		n.publish(ctx, paths.Join(n.root, paths.Records, id), recordEvent{
			Cycle:    report.ID,
			DeviceID: id,
		})
	}
}

func (n *Notifier) publish(ctx context.Context, topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error(err, "Failed to encode MQTT event", "topic", topic)
		return
	}
	if err := n.client.Publish(ctx, topic, qosAtLeastOnce, false, payload); err != nil {
		log.Warn("Failed to publish MQTT event", "topic", topic, "error", err)
	}
}
