package repository

import (
	"context"
	"errors"

	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) paymentdomain.Repository {
	return &repo{db: db}
}

func (r *repo) Insert(ctx context.Context, p *paymentdomain.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *repo) Update(ctx context.Context, p *paymentdomain.Payment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repo) FindByReference(ctx context.Context, reference string) (*paymentdomain.Payment, error) {
	return r.first(ctx, "reference = ?", reference)
}

func (r *repo) FindByExternalTransactionID(ctx context.Context, externalID string) (*paymentdomain.Payment, error) {
	return r.first(ctx, "external_transaction_id = ?", externalID)
}

func (r *repo) FindSucceededByQuoteID(ctx context.Context, quoteID snowflake.ID) (*paymentdomain.Payment, error) {
	return r.first(ctx, "quote_id = ? AND status = ?", quoteID, paymentdomain.PaymentStatusSucceeded)
}

func (r *repo) first(ctx context.Context, query string, args ...any) (*paymentdomain.Payment, error) {
	var p paymentdomain.Payment
	err := r.db.WithContext(ctx).First(&p, append([]any{query}, args...)...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
