package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ProductType string

const (
	ProductTypeVie    ProductType = "VIE"
	ProductTypeNonVie ProductType = "NONVIE"
)

type PricingMode string

const (
	PricingModeGrid    PricingMode = "grid"
	PricingModeFormula PricingMode = "formula"
)

// Product is the read model the pricing core needs from the product catalog.
// Catalog administration itself lives outside this service.
type Product struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	Reference        string       `json:"reference" gorm:"type:varchar(64);not null;uniqueIndex"`
	Name             string       `json:"name" gorm:"type:text;not null"`
	Type             ProductType  `json:"type" gorm:"type:varchar(10);not null"`
	PricingMode      PricingMode  `json:"pricing_mode" gorm:"type:varchar(10);not null"`
	CategoryCode     string       `json:"category_code" gorm:"type:varchar(3)"`
	MaxBeneficiaries int          `json:"max_beneficiaries" gorm:"default:2"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

type Category struct {
	ID   snowflake.ID `json:"id" gorm:"primaryKey"`
	Code string       `json:"code" gorm:"type:varchar(3);not null;uniqueIndex"`
	Name string       `json:"name" gorm:"type:text;not null"`
}

func (Category) TableName() string { return "categories" }

type GridStatus string

const (
	GridStatusActive   GridStatus = "active"
	GridStatusInactive GridStatus = "inactive"
	GridStatusFuture   GridStatus = "future"
)

// RateGrid is a dated set of fixed rates for a product. Several grids may
// exist per product; at most one is applicable for a given evaluation date.
type RateGrid struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductID snowflake.ID `json:"product_id" gorm:"not null;index"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	StartsAt  time.Time    `json:"starts_at" gorm:"not null"`
	EndsAt    *time.Time   `json:"ends_at"`
	Status    GridStatus   `json:"status" gorm:"type:varchar(10);not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (RateGrid) TableName() string { return "rate_grids" }

// Covers reports whether the grid's validity window contains t.
func (g *RateGrid) Covers(t time.Time) bool {
	if t.Before(g.StartsAt) {
		return false
	}
	return g.EndsAt == nil || t.Before(*g.EndsAt)
}

const (
	OperatorEquals     = "equals"
	OperatorDifferent  = "different"
	OperatorGreater    = "greater"
	OperatorLess       = "less"
	OperatorBetween    = "between"
	OperatorNotBetween = "not-between"
)

// RateCriterion is one declared key of a fixed rate. An empty operator means
// strict equality on the value.
type RateCriterion struct {
	Key      string `json:"key"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value"`
}

// FixedRate stores a fixed monetary amount keyed by a criteria combination.
type FixedRate struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	GridID    snowflake.ID    `json:"grid_id" gorm:"not null;index"`
	Criteria  datatypes.JSON  `json:"criteria" gorm:"not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:numeric(18,2);not null"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null"`
}

func (FixedRate) TableName() string { return "fixed_rates" }

type FormulaStatus string

const (
	FormulaStatusActive   FormulaStatus = "active"
	FormulaStatusInactive FormulaStatus = "inactive"
)

// Formula is a parametrized premium expression with its declared variable
// schema. A formula must evaluate cleanly against the schema defaults before
// it is persisted.
type Formula struct {
	ID         snowflake.ID   `json:"id" gorm:"primaryKey"`
	ProductID  snowflake.ID   `json:"product_id" gorm:"not null;index"`
	Name       string         `json:"name" gorm:"type:text;not null"`
	Expression string         `json:"expression" gorm:"type:text;not null"`
	Variables  datatypes.JSON `json:"variables"`
	Status     FormulaStatus  `json:"status" gorm:"type:varchar(10);not null"`
	CreatedAt  time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time      `json:"updated_at" gorm:"not null"`
}

func (Formula) TableName() string { return "formulas" }

var (
	ErrProductNotFound  = errors.New("product_not_found")
	ErrNoActiveGrid     = errors.New("no_active_grid")
	ErrNoMatchingRate   = errors.New("no_matching_rate")
	ErrFormulaNotFound  = errors.New("formula_not_found")
	ErrInvalidCriterion = errors.New("invalid_criterion")
)
