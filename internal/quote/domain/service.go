package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateQuoteInput struct {
	ProductID snowflake.ID
	Criteria  map[string]any
	Insured   *InsuredParty
	// EvaluationDate drives grid selection and the reference date segment.
	// Zero means now.
	EvaluationDate time.Time
}

// Service owns the quote lifecycle. Payment reconciliation and contract
// issuance drive it through OnPaymentSucceeded/OnPaymentFailed/Convert.
type Service interface {
	Create(ctx context.Context, input CreateQuoteInput) (*Quote, error)
	Get(ctx context.Context, id snowflake.ID) (*Quote, error)
	GetByReference(ctx context.Context, reference string) (*Quote, error)
	Save(ctx context.Context, quoteID, ownerID snowflake.ID) (*Quote, error)
	InitiatePayment(ctx context.Context, quoteID snowflake.ID) (*Quote, error)
	OnPaymentSucceeded(ctx context.Context, quoteID snowflake.ID) error
	OnPaymentFailed(ctx context.Context, quoteID snowflake.ID) error
	Convert(ctx context.Context, quoteID snowflake.ID) error
	Delete(ctx context.Context, quoteID, ownerID snowflake.ID) error
	SweepExpired(ctx context.Context) (int, error)
}

type Repository interface {
	Insert(ctx context.Context, q *Quote) error
	Update(ctx context.Context, q *Quote) error
	Delete(ctx context.Context, id snowflake.ID) error
	FindByID(ctx context.Context, id snowflake.ID) (*Quote, error)
	FindByReference(ctx context.Context, reference string) (*Quote, error)
	MaxReferenceWithPrefix(ctx context.Context, prefix string) (string, error)
	ExpireSimulationsBefore(ctx context.Context, cutoff time.Time) (int, error)
}
