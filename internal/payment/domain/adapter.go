package domain

import "context"

// Adapter normalizes one aggregator's callback shape into a CanonicalEvent.
// The payload is the merged body+query map of the webhook request. A payload
// the adapter cannot make sense of is ErrInvalidCallback.
type Adapter interface {
	Name() string
	Parse(payload map[string]any) (*CanonicalEvent, error)
}

// CheckoutInitiator is implemented by adapters whose aggregator exposes a
// hosted checkout API. Initiation is an outbound HTTP call with a bounded
// timeout; a deadline surfaces as ErrGatewayTimeout and never moves state.
type CheckoutInitiator interface {
	InitiateCheckout(ctx context.Context, p *Payment) (redirectURL string, err error)
}
