package mqtt

import (
	"context"
)

// Client publishes to a single broker. Readings only flow out of the
// agent, so there is no subscription side.
type Client interface {
	// Start begins connecting in the background and returns immediately.
	// Use AwaitConnection to wait for the first CONNACK.
	Start(ctx context.Context) error

	// Disconnect sends DISCONNECT and stops reconnecting.
	Disconnect(ctx context.Context)

	// Publish sends payload to topic.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// AwaitConnection blocks until the client is connected or ctx is done.
	AwaitConnection(ctx context.Context) error

	// IsConnected reports whether the last connection attempt succeeded
	// and the broker has not since dropped it.
	IsConnected() bool
}
