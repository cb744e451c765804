package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// RateResolution is the outcome of pricing one criteria set. GridID is set
// only when the premium came from a fixed-rate grid; formula pricing leaves
// it nil.
type RateResolution struct {
	Premium decimal.Decimal
	GridID  *snowflake.ID
}

// Service resolves the applicable rate for a product and criteria set. It is
// a pure read-and-compute surface: resolving a rate never mutates state.
type Service interface {
	ResolveRate(ctx context.Context, productID snowflake.ID, date time.Time, criteria map[string]any) (*RateResolution, error)
	GetProduct(ctx context.Context, reference string) (*Product, error)
	SaveFormula(ctx context.Context, f *Formula) error
}

type Repository interface {
	GetProduct(ctx context.Context, id snowflake.ID) (*Product, error)
	GetProductByReference(ctx context.Context, reference string) (*Product, error)
	GetCategoryByCode(ctx context.Context, code string) (*Category, error)
	ListGridsByProduct(ctx context.Context, productID snowflake.ID) ([]*RateGrid, error)
	ListRatesByGrid(ctx context.Context, gridID snowflake.ID) ([]*FixedRate, error)
	GetActiveFormula(ctx context.Context, productID snowflake.ID) (*Formula, error)
	SaveFormula(ctx context.Context, f *Formula) error
}
