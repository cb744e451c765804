package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type QuoteStatus string

const (
	QuoteStatusSimulation      QuoteStatus = "SIMULATION"
	QuoteStatusSaved           QuoteStatus = "SAVED"
	QuoteStatusAwaitingPayment QuoteStatus = "AWAITING_PAYMENT"
	QuoteStatusPaid            QuoteStatus = "PAID"
	QuoteStatusConverted       QuoteStatus = "CONVERTED"
	QuoteStatusExpired         QuoteStatus = "EXPIRED"
)

// InsuredParty is the snapshot of the person covered by the quote, copied
// onto the contract at issuance.
type InsuredParty struct {
	Name       string `json:"name"`
	BirthDate  string `json:"birth_date,omitempty"`
	IDDocument string `json:"id_document,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Quote is a priced, not-yet-binding insurance proposal. Its reference is
// globally unique ({VIE|NONVIE}-{YYYYMMDD}-{seq4}); the premium is always
// non-negative and rounded to 2 decimals; expires_at is set only while the
// quote is still a simulation.
type Quote struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	Reference    string          `json:"reference" gorm:"type:varchar(32);not null;uniqueIndex"`
	ProductID    snowflake.ID    `json:"product_id" gorm:"not null;index"`
	GridID       *snowflake.ID   `json:"grid_id"`
	OwnerID      *snowflake.ID   `json:"owner_id" gorm:"index"`
	CategoryCode string          `json:"category_code" gorm:"type:varchar(3)"`
	Criteria     datatypes.JSON  `json:"criteria"`
	Premium      decimal.Decimal `json:"premium" gorm:"type:numeric(18,2);not null"`
	Deductible   decimal.Decimal `json:"deductible" gorm:"type:numeric(18,2)"`
	Cap          decimal.Decimal `json:"cap" gorm:"type:numeric(18,2)"`
	Status       QuoteStatus     `json:"status" gorm:"type:varchar(20);not null;index"`
	ExpiresAt    *time.Time      `json:"expires_at"`
	Insured      datatypes.JSON  `json:"insured"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null"`
}

func (Quote) TableName() string { return "quotes" }

var (
	ErrQuoteNotFound = errors.New("quote_not_found")
	ErrInvalidState  = errors.New("invalid_state")
	ErrForbidden     = errors.New("forbidden")
	ErrExpired       = errors.New("quote_expired")
)

// transitions lists every legal move of the quote state machine. Anything
// not present here is rejected, never coerced.
var transitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusSimulation:      {QuoteStatusSaved, QuoteStatusExpired},
	QuoteStatusSaved:           {QuoteStatusAwaitingPayment},
	QuoteStatusAwaitingPayment: {QuoteStatusPaid, QuoteStatusSaved},
	QuoteStatusPaid:            {QuoteStatusConverted},
}

func TransitionAllowed(from, to QuoteStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
