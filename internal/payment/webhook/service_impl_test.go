package webhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/assurline/assurline/internal/clock"
	"github.com/assurline/assurline/internal/config"
	contractdomain "github.com/assurline/assurline/internal/contract/domain"
	contractservice "github.com/assurline/assurline/internal/contract/service"
	"github.com/assurline/assurline/internal/payment/adapters"
	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
	paymentservice "github.com/assurline/assurline/internal/payment/service"
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

type fixture struct {
	db          *gorm.DB
	node        *snowflake.Node
	clk         *clock.Fixed
	quoteSvc    quotedomain.Service
	checkoutSvc paymentdomain.CheckoutService
	svc         paymentdomain.ReconciliationService
	product     *tariffdomain.Product
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:webhook_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&tariffdomain.Product{},
		&tariffdomain.Category{},
		&tariffdomain.RateGrid{},
		&tariffdomain.FixedRate{},
		&tariffdomain.Formula{},
		&quotedomain.Quote{},
		&paymentdomain.Payment{},
		&contractdomain.Contract{},
		&contractdomain.Beneficiary{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := &clock.Fixed{T: time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)}
	cfg := config.Config{AgencyCode: "101", QuoteExpiry: 24 * time.Hour, GatewayTimeout: 5 * time.Second}

	tariffSvc := tariffservice.NewService(tariffservice.ServiceParam{DB: db, Log: zap.NewNop()})
	quoteSvc := quoteservice.NewService(quoteservice.ServiceParam{
		DB: db, Log: zap.NewNop(), TariffSvc: tariffSvc, GenID: node, Clock: clk, Cfg: cfg,
	})
	contractSvc := contractservice.NewService(contractservice.ServiceParam{
		DB: db, Log: zap.NewNop(), QuoteSvc: quoteSvc, GenID: node, Clock: clk, Cfg: cfg,
	})
	registry := adapters.NewRegistry(adapters.Params{Cfg: cfg})
	checkoutSvc := paymentservice.NewCheckoutService(paymentservice.CheckoutServiceParam{
		DB: db, Log: zap.NewNop(), Registry: registry, QuoteSvc: quoteSvc, GenID: node, Clock: clk, Cfg: cfg,
	})
	svc := NewService(ServiceParam{
		DB: db, Log: zap.NewNop(), Registry: registry, QuoteSvc: quoteSvc, ContractSvc: contractSvc, Clock: clk,
	})

	product := &tariffdomain.Product{
		ID:               node.Generate(),
		Reference:        "AUTO-TPL",
		Name:             "Responsabilité civile auto",
		Type:             tariffdomain.ProductTypeNonVie,
		PricingMode:      tariffdomain.PricingModeGrid,
		CategoryCode:     "230",
		MaxBeneficiaries: 2,
		CreatedAt:        clk.T,
	}
	require.NoError(t, db.Create(product).Error)
	require.NoError(t, db.Create(&tariffdomain.Category{
		ID: node.Generate(), Code: "230", Name: "Automobile",
	}).Error)

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

	return &fixture{db: db, node: node, clk: clk, quoteSvc: quoteSvc, checkoutSvc: checkoutSvc, svc: svc, product: product}
}

// awaitingPayment drives a quote to AWAITING_PAYMENT with a pending payment.
func (f *fixture) awaitingPayment(t *testing.T) (*quotedomain.Quote, *paymentdomain.Payment) {
	t.Helper()
	ctx := context.Background()
	q, err := f.quoteSvc.Create(ctx, quotedomain.CreateQuoteInput{
		ProductID: f.product.ID,
		Criteria:  map[string]any{"age": "18-25"},
		Insured:   &quotedomain.InsuredParty{Name: "Awa Diop"},
	})
	require.NoError(t, err)
	_, err = f.quoteSvc.Save(ctx, q.ID, f.node.Generate())
	require.NoError(t, err)

	res, err := f.checkoutSvc.InitiateCheckout(ctx, paymentdomain.CheckoutInput{
		QuoteID: q.ID, Aggregator: "generic", Method: "orange_money",
	})
	require.NoError(t, err)
	return q, res.Payment
}

func (f *fixture) quoteStatus(t *testing.T, id snowflake.ID) quotedomain.QuoteStatus {
	t.Helper()
	q, err := f.quoteSvc.Get(context.Background(), id)
	require.NoError(t, err)
	return q.Status
}

func (f *fixture) reloadPayment(t *testing.T, id snowflake.ID) *paymentdomain.Payment {
	t.Helper()
	var p paymentdomain.Payment
	require.NoError(t, f.db.First(&p, "id = ?", id).Error)
	return &p
}

func historyLen(t *testing.T, p *paymentdomain.Payment) int {
	t.Helper()
	if len(p.CallbackHistory) == 0 {
		return 0
	}
	var entries []json.RawMessage
	require.NoError(t, json.Unmarshal(p.CallbackHistory, &entries))
	return len(entries)
}

func TestHandleCallback_SuccessIssuesContract(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q, p := f.awaitingPayment(t)

	event, err := f.svc.HandleCallback(ctx, "generic", map[string]any{
		"payment_reference": p.Reference,
		"status":            "success",
		"transaction_id":    "txn-1",
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventSucceeded, event.Status)

	got := f.reloadPayment(t, p.ID)
	assert.Equal(t, paymentdomain.PaymentStatusSucceeded, got.Status)
	assert.Equal(t, "txn-1", got.ExternalTransactionID)
	require.NotNil(t, got.PaidAt)
	assert.Equal(t, f.clk.T, got.PaidAt.UTC())
	require.NotNil(t, got.ContractID)
	assert.Equal(t, 1, historyLen(t, got))

	assert.Equal(t, quotedomain.QuoteStatusConverted, f.quoteStatus(t, q.ID))

	var contract contractdomain.Contract
	require.NoError(t, f.db.First(&contract, "quote_id = ?", q.ID).Error)
	assert.Equal(t, "101-23000001", contract.Number)
	assert.Equal(t, *got.ContractID, contract.ID)
}

func TestHandleCallback_DuplicateSuccessOneContract(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q, p := f.awaitingPayment(t)

	payload := map[string]any{"payment_reference": p.Reference, "status": "success", "transaction_id": "txn-1"}
	_, err := f.svc.HandleCallback(ctx, "generic", payload)
	require.NoError(t, err)

	firstPaid := f.reloadPayment(t, p.ID).PaidAt
	f.clk.Advance(10 * time.Minute)

	_, err = f.svc.HandleCallback(ctx, "generic", payload)
	require.NoError(t, err)

	got := f.reloadPayment(t, p.ID)
	assert.Equal(t, paymentdomain.PaymentStatusSucceeded, got.Status)
	assert.Equal(t, firstPaid.UTC(), got.PaidAt.UTC(), "paid_at is set on the first success only")
	assert.Equal(t, 2, historyLen(t, got), "every delivery is kept in the history")

	var count int64
	require.NoError(t, f.db.Model(&contractdomain.Contract{}).Where("quote_id = ?", q.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestHandleCallback_FailureReleasesQuote(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q, p := f.awaitingPayment(t)

	event, err := f.svc.HandleCallback(ctx, "generic", map[string]any{
		"payment_reference": p.Reference,
		"status":            "failed",
		"error_message":     "solde insuffisant",
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventFailed, event.Status)

	got := f.reloadPayment(t, p.ID)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, got.Status)
	assert.Equal(t, "solde insuffisant", got.ErrorMessage)
	assert.Nil(t, got.PaidAt)

	assert.Equal(t, quotedomain.QuoteStatusSaved, f.quoteStatus(t, q.ID))

	// The quote can start a fresh attempt.
	_, err = f.checkoutSvc.InitiateCheckout(ctx, paymentdomain.CheckoutInput{QuoteID: q.ID, Aggregator: "generic"})
	require.NoError(t, err)
}

func TestHandleCallback_LateFailureNeverDowngrades(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q, p := f.awaitingPayment(t)

	_, err := f.svc.HandleCallback(ctx, "generic", map[string]any{
		"payment_reference": p.Reference, "status": "success", "transaction_id": "txn-1",
	})
	require.NoError(t, err)

	_, err = f.svc.HandleCallback(ctx, "generic", map[string]any{
		"payment_reference": p.Reference, "status": "failed", "error_message": "late failure",
	})
	require.NoError(t, err)

	got := f.reloadPayment(t, p.ID)
	assert.Equal(t, paymentdomain.PaymentStatusSucceeded, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, 2, historyLen(t, got))
	assert.Equal(t, quotedomain.QuoteStatusConverted, f.quoteStatus(t, q.ID))
}

func TestHandleCallback_PendingIsStatusOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q, p := f.awaitingPayment(t)

	_, err := f.svc.HandleCallback(ctx, "generic", map[string]any{
		"payment_reference": p.Reference, "status": "pending", "transaction_id": "txn-1",
	})
	require.NoError(t, err)

	got := f.reloadPayment(t, p.ID)
	assert.Equal(t, paymentdomain.PaymentStatusPending, got.Status)
	assert.Equal(t, "txn-1", got.ExternalTransactionID)
	assert.Equal(t, quotedomain.QuoteStatusAwaitingPayment, f.quoteStatus(t, q.ID))
}

func TestHandleCallback_CancellationKeepsQuoteAwaiting(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q, p := f.awaitingPayment(t)

	_, err := f.svc.HandleCallback(ctx, "generic", map[string]any{
		"payment_reference": p.Reference, "status": "cancelled",
	})
	require.NoError(t, err)

	assert.Equal(t, paymentdomain.PaymentStatusCancelled, f.reloadPayment(t, p.ID).Status)
	assert.Equal(t, quotedomain.QuoteStatusAwaitingPayment, f.quoteStatus(t, q.ID))

	// Checkout restarts with a fresh payment attempt.
	res, err := f.checkoutSvc.InitiateCheckout(ctx, paymentdomain.CheckoutInput{QuoteID: q.ID, Aggregator: "wave"})
	require.NoError(t, err)
	assert.NotEqual(t, p.Reference, res.Payment.Reference)
}

func TestHandleCallback_LookupByExternalTransactionID(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q, p := f.awaitingPayment(t)

	// The pending callback attaches the aggregator's transaction id.
	_, err := f.svc.HandleCallback(ctx, "generic", map[string]any{
		"payment_reference": p.Reference, "status": "pending", "transaction_id": "txn-9",
	})
	require.NoError(t, err)

	// The success callback carries only the transaction id.
	_, err = f.svc.HandleCallback(ctx, "generic", map[string]any{
		"transaction_id": "txn-9", "status": "success",
	})
	require.NoError(t, err)

	assert.Equal(t, paymentdomain.PaymentStatusSucceeded, f.reloadPayment(t, p.ID).Status)
	assert.Equal(t, quotedomain.QuoteStatusConverted, f.quoteStatus(t, q.ID))
}

func TestHandleCallback_BeneficiariesReachTheContract(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q, p := f.awaitingPayment(t)

	_, err := f.svc.HandleCallback(ctx, "generic", map[string]any{
		"payment_reference": p.Reference,
		"status":            "success",
		"transaction_id":    "txn-1",
		"beneficiaries": []any{
			map[string]any{"name": "Fatou Ndiaye", "relationship": "conjoint"},
			map[string]any{"name": "Omar Ndiaye", "relationship": "enfant"},
		},
	})
	require.NoError(t, err)

	var contract contractdomain.Contract
	require.NoError(t, f.db.Preload("Beneficiaries").First(&contract, "quote_id = ?", q.ID).Error)
	require.Len(t, contract.Beneficiaries, 2)
	assert.Equal(t, "Fatou Ndiaye", contract.Beneficiaries[0].Name)
}

func TestHandleCallback_Errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, p := f.awaitingPayment(t)

	_, err := f.svc.HandleCallback(ctx, "stripe", map[string]any{"payment_reference": p.Reference, "status": "success"})
	assert.ErrorIs(t, err, paymentdomain.ErrUnknownAggregator)

	_, err = f.svc.HandleCallback(ctx, "generic", map[string]any{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidCallback)

	_, err = f.svc.HandleCallback(ctx, "generic", map[string]any{"payment_reference": "PAY-missing", "status": "success"})
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)

	// An understood but unmatched callback leaves everything untouched.
	got := f.reloadPayment(t, p.ID)
	assert.Equal(t, paymentdomain.PaymentStatusPending, got.Status)
	assert.Zero(t, historyLen(t, got))
}
