package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// Payment tracks one checkout attempt for a quote. The reference is generated
// by this system and is the aggregator-agnostic correlation key; callback
// payloads are appended to CallbackHistory and never overwritten. A payment
// crosses into SUCCEEDED at most once: paid_at is set on the first success
// observation only.
type Payment struct {
	ID                    snowflake.ID    `json:"id" gorm:"primaryKey"`
	Reference             string          `json:"reference" gorm:"type:varchar(64);not null;uniqueIndex"`
	QuoteID               snowflake.ID    `json:"quote_id" gorm:"not null;index"`
	QuoteReference        string          `json:"quote_reference" gorm:"type:varchar(32);not null"`
	ContractID            *snowflake.ID   `json:"contract_id"`
	Amount                decimal.Decimal `json:"amount" gorm:"type:numeric(18,2);not null"`
	Method                string          `json:"method" gorm:"type:varchar(32)"`
	Status                PaymentStatus   `json:"status" gorm:"type:varchar(16);not null;index"`
	Aggregator            string          `json:"aggregator" gorm:"type:varchar(32);not null"`
	ExternalTransactionID string          `json:"external_transaction_id" gorm:"type:varchar(128);index"`
	OperatorID            string          `json:"operator_id" gorm:"type:varchar(128)"`
	ErrorMessage          string          `json:"error_message" gorm:"type:text"`
	CallbackHistory       datatypes.JSON  `json:"callback_history"`
	Metadata              datatypes.JSON  `json:"metadata"`
	PaidAt                *time.Time      `json:"paid_at"`
	CreatedAt             time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time       `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

var (
	ErrPaymentNotFound    = errors.New("payment_not_found")
	ErrInvalidCallback    = errors.New("invalid_callback")
	ErrUnknownAggregator  = errors.New("unknown_aggregator")
	ErrGatewayTimeout     = errors.New("gateway_timeout")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
)
