package mqtt

import "context"

// Client is the broker-facing surface the agent publishes through. It
// hides the paho machinery behind four lifecycle calls.
type Client interface {
	// Start opens the connection in the background and returns
	// immediately. Reconnects are automatic from then on.
	Start(ctx context.Context) error

	// Disconnect closes the connection cleanly and stops reconnecting.
	Disconnect(ctx context.Context)

	// Publish sends payload to topic at the given QoS level.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// AwaitConnection blocks until the broker accepted the connection
	// or ctx is done.
	AwaitConnection(ctx context.Context) error
}
