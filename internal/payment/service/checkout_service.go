package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/assurline/assurline/internal/clock"
	"github.com/assurline/assurline/internal/config"
	"github.com/assurline/assurline/internal/payment/adapters"
	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
	"github.com/assurline/assurline/internal/payment/repository"
	quotedomain "github.com/assurline/assurline/internal/quote/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CheckoutService struct {
	log      *zap.Logger
	repo     paymentdomain.Repository
	registry *adapters.Registry
	quoteSvc quotedomain.Service
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
}

type CheckoutServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Registry *adapters.Registry
	QuoteSvc quotedomain.Service
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
}

func NewCheckoutService(p CheckoutServiceParam) paymentdomain.CheckoutService {
	return &CheckoutService{
		log:      p.Log.Named("payment.checkout"),
		repo:     repository.NewRepository(p.DB),
		registry: p.Registry,
		quoteSvc: p.QuoteSvc,
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
	}
}

// InitiateCheckout creates a pending payment for the quote and, when the
// aggregator has a hosted checkout API, obtains the redirect URL. The quote
// moves to AWAITING_PAYMENT only after the gateway accepted the session, so a
// gateway failure leaves the quote where it was.
func (s *CheckoutService) InitiateCheckout(ctx context.Context, input paymentdomain.CheckoutInput) (*paymentdomain.CheckoutResult, error) {
	adapter, ok := s.registry.Get(input.Aggregator)
	if !ok {
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrUnknownAggregator, input.Aggregator)
	}

	quote, err := s.quoteSvc.Get(ctx, input.QuoteID)
	if err != nil {
		return nil, err
	}
	// A quote already awaiting payment may start another attempt, e.g. after
	// abandoning the first checkout page.
	if quote.Status != quotedomain.QuoteStatusAwaitingPayment &&
		!quotedomain.TransitionAllowed(quote.Status, quotedomain.QuoteStatusAwaitingPayment) {
		return nil, quotedomain.ErrInvalidState
	}

	now := s.clock.Now(ctx)
	payment := &paymentdomain.Payment{
		ID:             s.genID.Generate(),
		Reference:      "PAY-" + uuid.NewString(),
		QuoteID:        quote.ID,
		QuoteReference: quote.Reference,
		Amount:         quote.Premium,
		Method:         input.Method,
		Status:         paymentdomain.PaymentStatusPending,
		Aggregator:     adapter.Name(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, payment); err != nil {
		return nil, err
	}

	var redirectURL string
	if initiator, ok := adapter.(paymentdomain.CheckoutInitiator); ok {
		timeout := s.cfg.GatewayTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		gctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		redirectURL, err = initiator.InitiateCheckout(gctx, payment)
		if err != nil {
			s.log.Warn("checkout initiation failed",
				zap.String("aggregator", adapter.Name()),
				zap.String("payment_reference", payment.Reference),
				zap.Error(err))
			return nil, s.classifyGatewayError(err)
		}
	}

	if quote.Status != quotedomain.QuoteStatusAwaitingPayment {
		if _, err := s.quoteSvc.InitiatePayment(ctx, quote.ID); err != nil {
			return nil, err
		}
	}

	s.log.Info("checkout initiated",
		zap.String("payment_reference", payment.Reference),
		zap.String("quote_reference", quote.Reference),
		zap.String("aggregator", adapter.Name()))
	return &paymentdomain.CheckoutResult{Payment: payment, RedirectURL: redirectURL}, nil
}

func (s *CheckoutService) GetByReference(ctx context.Context, reference string) (*paymentdomain.Payment, error) {
	p, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return p, nil
}

func (s *CheckoutService) classifyGatewayError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", paymentdomain.ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
}
