package evm

import "context"

// WSClient defines the EVM WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to logs matching the filter via
	// eth_subscribe("logs"). The returned id cancels the subscription.
	SubscribeLogs(ctx context.Context, q FilterQuery) (SubscriptionID, <-chan Log, error)

	// Unsubscribe cancels a single subscription (eth_unsubscribe) and closes
	// its channel.
	Unsubscribe(ctx context.Context, id SubscriptionID) error

	// Close closes the WebSocket connection and all subscription channels.
	Close() error
}

// SubscriptionID is the hex subscription identifier returned by
// eth_subscribe.
type SubscriptionID string
