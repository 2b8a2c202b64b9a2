package instance

import "context"

// ICapabilityAdapter is the opaque per-session protocol client.
//
// Events must stay open until Close returns; closing the channel tells the
// lifecycle controller that the adapter is gone for good.
type ICapabilityAdapter interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, to, text string) error
	Events() <-chan Event
	// RequestQR asks for a fresh pairing code after the previous one expired.
	RequestQR(ctx context.Context) error
	Close(ctx context.Context) error
}

// AdapterFactory builds the adapter for a new instance.
type AdapterFactory func(ctx context.Context, instanceID string) (ICapabilityAdapter, error)
