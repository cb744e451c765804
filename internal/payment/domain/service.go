package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// CheckoutService creates payments and hands them to an aggregator.
type CheckoutService interface {
	InitiateCheckout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
	GetByReference(ctx context.Context, reference string) (*Payment, error)
}

type CheckoutInput struct {
	QuoteID    snowflake.ID
	Aggregator string
	Method     string
}

type CheckoutResult struct {
	Payment     *Payment `json:"payment"`
	RedirectURL string   `json:"redirect_url,omitempty"`
}

// ReconciliationService normalizes aggregator callbacks and drives the quote
// and contract lifecycles idempotently. Delivery is at least once and may be
// concurrent for the same payment reference.
type ReconciliationService interface {
	HandleCallback(ctx context.Context, aggregator string, payload map[string]any) (*CanonicalEvent, error)
}

type Repository interface {
	Insert(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
	FindByID(ctx context.Context, id snowflake.ID) (*Payment, error)
	FindByReference(ctx context.Context, reference string) (*Payment, error)
	FindByExternalTransactionID(ctx context.Context, externalID string) (*Payment, error)
	FindSucceededByQuoteID(ctx context.Context, quoteID snowflake.ID) (*Payment, error)
}
