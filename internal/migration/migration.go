package migration

import (
	contractdomain "github.com/assurline/assurline/internal/contract/domain"
	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
	quotedomain "github.com/assurline/assurline/internal/quote/domain"
	tariffdomain "github.com/assurline/assurline/internal/tariff/domain"
	"gorm.io/gorm"
)

// RunMigrations brings the schema up to date. Ordering follows foreign key
// direction so a fresh database migrates cleanly.
func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&tariffdomain.Category{},
		&tariffdomain.Product{},
		&tariffdomain.RateGrid{},
		&tariffdomain.FixedRate{},
		&tariffdomain.Formula{},
		&quotedomain.Quote{},
		&paymentdomain.Payment{},
		&contractdomain.Contract{},
		&contractdomain.Beneficiary{},
	)
}
