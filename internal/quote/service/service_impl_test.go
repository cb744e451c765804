package service

import (
	"context"
	"testing"
	"time"

	"github.com/assurline/assurline/internal/clock"
	"github.com/assurline/assurline/internal/config"
	quotedomain "github.com/assurline/assurline/internal/quote/domain"
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

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clk     *clock.Fixed
	svc     quotedomain.Service
	product *tariffdomain.Product
	grid    *tariffdomain.RateGrid
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:quote_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
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

	tariffSvc := tariffservice.NewService(tariffservice.ServiceParam{DB: db, Log: zap.NewNop()})
	svc := NewService(ServiceParam{
		DB:        db,
		Log:       zap.NewNop(),
		TariffSvc: tariffSvc,
		GenID:     node,
		Clock:     clk,
		Cfg:       config.Config{QuoteExpiry: 24 * time.Hour},
	})

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
		StartsAt:  clk.T.Add(-30 * 24 * time.Hour),
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

	return &fixture{db: db, node: node, clk: clk, svc: svc, product: product, grid: grid}
}

func (f *fixture) createQuote(t *testing.T) *quotedomain.Quote {
	t.Helper()
	q, err := f.svc.Create(context.Background(), quotedomain.CreateQuoteInput{
		ProductID: f.product.ID,
		Criteria:  map[string]any{"age": "18-25"},
		Insured:   &quotedomain.InsuredParty{Name: "Awa Diop", BirthDate: "1999-02-10"},
	})
	require.NoError(t, err)
	return q
}

func TestCreate_AssignsSequentialReferences(t *testing.T) {
	f := setup(t)

	q1 := f.createQuote(t)
	assert.Equal(t, "NONVIE-20260831-0001", q1.Reference)
	assert.Equal(t, quotedomain.QuoteStatusSimulation, q1.Status)
	assert.Equal(t, "12500.00", q1.Premium.StringFixed(2))
	require.NotNil(t, q1.GridID, "a grid-priced quote records the grid it was priced from")
	assert.Equal(t, f.grid.ID, *q1.GridID)
	require.NotNil(t, q1.ExpiresAt)
	assert.Equal(t, f.clk.T.Add(24*time.Hour), q1.ExpiresAt.UTC())

	q2 := f.createQuote(t)
	assert.Equal(t, "NONVIE-20260831-0002", q2.Reference)
}

func TestCreate_TariffErrorNeverDefaultsToZero(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Create(context.Background(), quotedomain.CreateQuoteInput{
		ProductID: f.product.ID,
		Criteria:  map[string]any{"age": "99-120"},
	})
	assert.ErrorIs(t, err, tariffdomain.ErrNoMatchingRate)

	var count int64
	require.NoError(t, f.db.Model(&quotedomain.Quote{}).Count(&count).Error)
	assert.Zero(t, count, "unpriceable quote must not be persisted")
}

func TestSave_OwnershipAndExpiry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	owner := f.node.Generate()
	other := f.node.Generate()

	q := f.createQuote(t)
	saved, err := f.svc.Save(ctx, q.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.QuoteStatusSaved, saved.Status)
	assert.Nil(t, saved.ExpiresAt, "saving clears the expiry")
	require.NotNil(t, saved.OwnerID)
	assert.Equal(t, owner, *saved.OwnerID)

	// A different user cannot take over a saved quote.
	_, err = f.svc.Save(ctx, q.ID, other)
	assert.ErrorIs(t, err, quotedomain.ErrForbidden)

	// A stale simulation cannot be saved.
	stale := f.createQuote(t)
	f.clk.Advance(25 * time.Hour)
	_, err = f.svc.Save(ctx, stale.ID, owner)
	assert.ErrorIs(t, err, quotedomain.ErrExpired)
}

func TestLifecycle_HappyPath(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	owner := f.node.Generate()

	q := f.createQuote(t)
	_, err := f.svc.Save(ctx, q.ID, owner)
	require.NoError(t, err)

	_, err = f.svc.InitiatePayment(ctx, q.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.OnPaymentSucceeded(ctx, q.ID))
	got, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.QuoteStatusPaid, got.Status)

	// Success callbacks are at-least-once; replays are no-ops.
	require.NoError(t, f.svc.OnPaymentSucceeded(ctx, q.ID))

	require.NoError(t, f.svc.Convert(ctx, q.ID))
	got, err = f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.QuoteStatusConverted, got.Status)

	// Convert is idempotent too.
	require.NoError(t, f.svc.Convert(ctx, q.ID))
	require.NoError(t, f.svc.OnPaymentSucceeded(ctx, q.ID))
}

func TestLifecycle_PaymentFailureReturnsToSaved(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	q := f.createQuote(t)
	_, err := f.svc.Save(ctx, q.ID, f.node.Generate())
	require.NoError(t, err)
	_, err = f.svc.InitiatePayment(ctx, q.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.OnPaymentFailed(ctx, q.ID))
	got, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.QuoteStatusSaved, got.Status)

	// Duplicate failure delivery is a no-op, and payment can be retried.
	require.NoError(t, f.svc.OnPaymentFailed(ctx, q.ID))
	_, err = f.svc.InitiatePayment(ctx, q.ID)
	require.NoError(t, err)
}

func TestLifecycle_IllegalTransitionsRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	q := f.createQuote(t)

	// A simulation cannot enter payment, be paid, fail payment or convert.
	_, err := f.svc.InitiatePayment(ctx, q.ID)
	assert.ErrorIs(t, err, quotedomain.ErrInvalidState)
	assert.ErrorIs(t, f.svc.OnPaymentSucceeded(ctx, q.ID), quotedomain.ErrInvalidState)
	assert.ErrorIs(t, f.svc.OnPaymentFailed(ctx, q.ID), quotedomain.ErrInvalidState)
	assert.ErrorIs(t, f.svc.Convert(ctx, q.ID), quotedomain.ErrInvalidState)

	got, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.QuoteStatusSimulation, got.Status, "rejected transitions leave state untouched")
}

func TestSweepExpired(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	expiring := f.createQuote(t)
	kept := f.createQuote(t)
	_, err := f.svc.Save(ctx, kept.ID, f.node.Generate())
	require.NoError(t, err)

	f.clk.Advance(25 * time.Hour)
	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, expiring.ID)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.QuoteStatusExpired, got.Status)

	got, err = f.svc.Get(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.QuoteStatusSaved, got.Status, "saved quotes are exempt from the sweep")

	// Sweep is idempotent.
	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDelete_UnconvertedOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	owner := f.node.Generate()

	q := f.createQuote(t)
	_, err := f.svc.Save(ctx, q.ID, owner)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, q.ID, f.node.Generate()), quotedomain.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, q.ID, owner))
	_, err = f.svc.Get(ctx, q.ID)
	assert.ErrorIs(t, err, quotedomain.ErrQuoteNotFound)
}
