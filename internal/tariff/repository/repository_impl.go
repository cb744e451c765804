package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	tariffdomain "github.com/assurline/assurline/internal/tariff/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) tariffdomain.Repository {
	return &repo{db: db}
}

func (r *repo) GetProduct(ctx context.Context, id snowflake.ID) (*tariffdomain.Product, error) {
	var p tariffdomain.Product
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) GetProductByReference(ctx context.Context, reference string) (*tariffdomain.Product, error) {
	var p tariffdomain.Product
	err := r.db.WithContext(ctx).First(&p, "reference = ?", reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) GetCategoryByCode(ctx context.Context, code string) (*tariffdomain.Category, error) {
	var c tariffdomain.Category
	err := r.db.WithContext(ctx).First(&c, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repo) ListGridsByProduct(ctx context.Context, productID snowflake.ID) ([]*tariffdomain.RateGrid, error) {
	var grids []*tariffdomain.RateGrid
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("starts_at DESC").
		Find(&grids).Error
	if err != nil {
		return nil, err
	}
	return grids, nil
}

func (r *repo) ListRatesByGrid(ctx context.Context, gridID snowflake.ID) ([]*tariffdomain.FixedRate, error) {
	var rates []*tariffdomain.FixedRate
	err := r.db.WithContext(ctx).
		Where("grid_id = ?", gridID).
		Order("created_at ASC").
		Find(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repo) GetActiveFormula(ctx context.Context, productID snowflake.ID) (*tariffdomain.Formula, error) {
	var f tariffdomain.Formula
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND status = ?", productID, tariffdomain.FormulaStatusActive).
		Order("updated_at DESC").
		First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *repo) SaveFormula(ctx context.Context, f *tariffdomain.Formula) error {
	return r.db.WithContext(ctx).Save(f).Error
}
