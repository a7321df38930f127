// Package paths defines the topic segments of the fleetsink telemetry
// topology. These constants are the routing contract between the agent
// and downstream consumers.
package paths

import "strings"

// Upstream: Agent -> Consumers (status reports)
const (
	// Summary is the topic segment for per-cycle backup summaries.
	// Payload: cycle id, result, device counts, elapsed time.
	// Pattern: {root}/backup/summary
	Summary = "backup/summary"

	// Records is the topic segment for per-device write notifications.
	// Payload: { "cycle": "...", "deviceId": "..." }
	// Pattern: {root}/backup/records/{deviceID}
	Records = "backup/records"

	// Offline is the topic segment of the agent's will message, published
	// by the broker when the agent drops off without a clean disconnect.
	// Payload: { "clientId": "..." }
	// Pattern: {root}/agent/offline
	Offline = "agent/offline"
)

// Join assembles a topic from the configured root and its segments.
func Join(root string, segments ...string) string {
	parts := append([]string{root}, segments...)
	return strings.Join(parts, "/")
}
