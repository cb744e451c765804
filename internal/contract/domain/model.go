package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ContractStatus string

const (
	ContractStatusActive     ContractStatus = "ACTIVE"
	ContractStatusSuspended  ContractStatus = "SUSPENDED"
	ContractStatusTerminated ContractStatus = "TERMINATED"
	ContractStatusExpired    ContractStatus = "EXPIRED"
)

// Contract is the binding policy issued from a paid quote. The number is
// globally unique ({agency}-{category}{seq}); at most one contract ever
// exists per quote. Premium, deductible and criteria are snapshots taken at
// issuance so later tariff changes never touch an issued policy.
type Contract struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	Number         string          `json:"number" gorm:"type:varchar(16);not null;uniqueIndex"`
	QuoteID        snowflake.ID    `json:"quote_id" gorm:"not null;uniqueIndex"`
	QuoteReference string          `json:"quote_reference" gorm:"type:varchar(32);not null"`
	ProductID      snowflake.ID    `json:"product_id" gorm:"not null;index"`
	GridID         *snowflake.ID   `json:"grid_id"`
	PaymentID      *snowflake.ID   `json:"payment_id"`
	OwnerID        *snowflake.ID   `json:"owner_id" gorm:"index"`
	CategoryCode   string          `json:"category_code" gorm:"type:varchar(3);not null"`
	Premium        decimal.Decimal `json:"premium" gorm:"type:numeric(18,2);not null"`
	Deductible     decimal.Decimal `json:"deductible" gorm:"type:numeric(18,2)"`
	Cap            decimal.Decimal `json:"cap" gorm:"type:numeric(18,2)"`
	Status         ContractStatus  `json:"status" gorm:"type:varchar(16);not null;index"`
	Insured        datatypes.JSON  `json:"insured"`
	Criteria       datatypes.JSON  `json:"criteria"`
	EffectiveAt    time.Time       `json:"effective_at" gorm:"not null"`
	ExpiresAt      time.Time       `json:"expires_at" gorm:"not null"`
	Beneficiaries  []Beneficiary   `json:"beneficiaries" gorm:"foreignKey:ContractID"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"not null"`
}

func (Contract) TableName() string { return "contracts" }

// Beneficiary is a person designated on the contract, ranked by priority.
type Beneficiary struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	ContractID   snowflake.ID `json:"contract_id" gorm:"not null;index"`
	Name         string       `json:"name" gorm:"type:varchar(128);not null"`
	Relationship string       `json:"relationship" gorm:"type:varchar(64)"`
	Rank         int          `json:"rank" gorm:"not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
}

func (Beneficiary) TableName() string { return "contract_beneficiaries" }

var (
	ErrContractNotFound = errors.New("contract_not_found")
	ErrMissingCategory  = errors.New("missing_category")
)
