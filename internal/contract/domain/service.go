package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service issues contracts from paid quotes. IssueFromQuote is idempotent:
// once a quote has a contract, every further call returns that contract.
type Service interface {
	IssueFromQuote(ctx context.Context, quoteID snowflake.ID) (*Contract, error)
	Get(ctx context.Context, id snowflake.ID) (*Contract, error)
	GetByNumber(ctx context.Context, number string) (*Contract, error)
}

type Repository interface {
	Insert(ctx context.Context, c *Contract) error
	FindByID(ctx context.Context, id snowflake.ID) (*Contract, error)
	FindByNumber(ctx context.Context, number string) (*Contract, error)
	FindByQuoteID(ctx context.Context, quoteID snowflake.ID) (*Contract, error)
	MaxNumberWithPrefix(ctx context.Context, prefix string) (string, error)
}
