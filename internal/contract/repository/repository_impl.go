package repository

import (
	"context"
	"errors"

	contractdomain "github.com/assurline/assurline/internal/contract/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) contractdomain.Repository {
	return &repo{db: db}
}

func (r *repo) Insert(ctx context.Context, c *contractdomain.Contract) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repo) FindByNumber(ctx context.Context, number string) (*contractdomain.Contract, error) {
	return r.first(ctx, "number = ?", number)
}

func (r *repo) FindByQuoteID(ctx context.Context, quoteID snowflake.ID) (*contractdomain.Contract, error) {
	return r.first(ctx, "quote_id = ?", quoteID)
}

// MaxNumberWithPrefix returns the highest contract number under the prefix.
// Zero-padded sequences make lexicographic and numeric order agree.
func (r *repo) MaxNumberWithPrefix(ctx context.Context, prefix string) (string, error) {
	var number string
	err := r.db.WithContext(ctx).
		Raw(`SELECT number FROM contracts WHERE number LIKE ? ORDER BY number DESC LIMIT 1`, prefix+"%").
		Scan(&number).Error
	return number, err
}

func (r *repo) first(ctx context.Context, query string, args ...any) (*contractdomain.Contract, error) {
	var c contractdomain.Contract
	err := r.db.WithContext(ctx).
		Preload("Beneficiaries").
		First(&c, append([]any{query}, args...)...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
