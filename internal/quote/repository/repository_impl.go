package repository

import (
	"context"
	"errors"
	"time"

	quotedomain "github.com/assurline/assurline/internal/quote/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) quotedomain.Repository {
	return &repo{db: db}
}

func (r *repo) Insert(ctx context.Context, q *quotedomain.Quote) error {
	return r.db.WithContext(ctx).Create(q).Error
}

func (r *repo) Update(ctx context.Context, q *quotedomain.Quote) error {
	return r.db.WithContext(ctx).Save(q).Error
}

func (r *repo) Delete(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Delete(&quotedomain.Quote{}, "id = ?", id).Error
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*quotedomain.Quote, error) {
	var q quotedomain.Quote
	err := r.db.WithContext(ctx).First(&q, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repo) FindByReference(ctx context.Context, reference string) (*quotedomain.Quote, error) {
	var q quotedomain.Quote
	err := r.db.WithContext(ctx).First(&q, "reference = ?", reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repo) MaxReferenceWithPrefix(ctx context.Context, prefix string) (string, error) {
	var ref string
	err := r.db.WithContext(ctx).Raw(
		`SELECT reference FROM quotes WHERE reference LIKE ? ORDER BY reference DESC LIMIT 1`,
		prefix+"%",
	).Scan(&ref).Error
	if err != nil {
		return "", err
	}
	return ref, nil
}

func (r *repo) ExpireSimulationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&quotedomain.Quote{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", quotedomain.QuoteStatusSimulation, cutoff).
		Updates(map[string]any{"status": quotedomain.QuoteStatusExpired, "updated_at": cutoff})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
