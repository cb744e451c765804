package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/assurline/assurline/internal/clock"
	"github.com/assurline/assurline/internal/config"
	quotedomain "github.com/assurline/assurline/internal/quote/domain"
	quoteservice "github.com/assurline/assurline/internal/quote/service"
	tariffdomain "github.com/assurline/assurline/internal/tariff/domain"
	tariffservice "github.com/assurline/assurline/internal/tariff/service"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestExpireQuotesJob(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:scheduler_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&tariffdomain.Product{},
		&tariffdomain.RateGrid{},
		&tariffdomain.FixedRate{},
		&tariffdomain.Formula{},
		&quotedomain.Quote{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := &clock.Fixed{T: time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)}
	cfg := config.Config{QuoteExpiry: 24 * time.Hour, SweepInterval: time.Minute}

	tariffSvc := tariffservice.NewService(tariffservice.ServiceParam{DB: db, Log: zap.NewNop()})
	quoteSvc := quoteservice.NewService(quoteservice.ServiceParam{
		DB: db, Log: zap.NewNop(), TariffSvc: tariffSvc, GenID: node, Clock: clk, Cfg: cfg,
	})
	s := New(Params{Log: zap.NewNop(), Clock: clk, Cfg: cfg, QuoteSvc: quoteSvc})
	assert.Equal(t, time.Minute, s.interval)

	product := &tariffdomain.Product{
		ID:           node.Generate(),
		Reference:    "AUTO-TPL",
		Name:         "Responsabilité civile auto",
		Type:         tariffdomain.ProductTypeNonVie,
		PricingMode:  tariffdomain.PricingModeGrid,
		CategoryCode: "230",
		CreatedAt:    clk.T,
	}
	require.NoError(t, db.Create(product).Error)
	grid := &tariffdomain.RateGrid{
		ID:        node.Generate(),
		ProductID: product.ID,
		Name:      "grille 2026",
		StartsAt:  clk.T.Add(-time.Hour),
		Status:    tariffdomain.GridStatusActive,
		CreatedAt: clk.T,
	}
	require.NoError(t, db.Create(grid).Error)
	require.NoError(t, db.Create(&tariffdomain.FixedRate{
		ID:        node.Generate(),
		GridID:    grid.ID,
		Criteria:  datatypes.JSON(`[{"key":"age","value":"18-25"}]`),
		Amount:    decimal.RequireFromString("12500"),
		CreatedAt: clk.T,
	}).Error)

	ctx := context.Background()
	q, err := quoteSvc.Create(ctx, quotedomain.CreateQuoteInput{
		ProductID: product.ID,
		Criteria:  map[string]any{"age": "18-25"},
	})
	require.NoError(t, err)

	// Nothing is overdue yet.
	require.NoError(t, s.ExpireQuotesJob(ctx))
	got, err := quoteSvc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.QuoteStatusSimulation, got.Status)

	clk.Advance(25 * time.Hour)
	require.NoError(t, s.ExpireQuotesJob(ctx))
	got, err = quoteSvc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.QuoteStatusExpired, got.Status)
}

func TestDefaultInterval(t *testing.T) {
	s := New(Params{Log: zap.NewNop(), Clock: clock.New(), Cfg: config.Config{}})
	assert.Equal(t, defaultSweepInterval, s.interval)
}
