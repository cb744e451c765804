package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/assurline/assurline/internal/clock"
	contractdomain "github.com/assurline/assurline/internal/contract/domain"
	"github.com/assurline/assurline/internal/payment/adapters"
	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
	"github.com/assurline/assurline/internal/payment/repository"
	quotedomain "github.com/assurline/assurline/internal/quote/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	log         *zap.Logger
	repo        paymentdomain.Repository
	registry    *adapters.Registry
	quoteSvc    quotedomain.Service
	contractSvc contractdomain.Service
	clock       clock.Clock
}

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Registry    *adapters.Registry
	QuoteSvc    quotedomain.Service
	ContractSvc contractdomain.Service
	Clock       clock.Clock
}

func NewService(p ServiceParam) paymentdomain.ReconciliationService {
	return &Service{
		log:         p.Log.Named("payment.webhook"),
		repo:        repository.NewRepository(p.DB),
		registry:    p.Registry,
		quoteSvc:    p.QuoteSvc,
		contractSvc: p.ContractSvc,
		clock:       p.Clock,
	}
}

// HandleCallback normalizes one aggregator callback and reconciles the
// payment, the quote and the contract. Delivery is at least once: a success
// already applied re-runs the downstream effects, which are all idempotent,
// and a failure arriving after a success is recorded but never downgrades
// the payment.
func (s *Service) HandleCallback(ctx context.Context, aggregator string, payload map[string]any) (*paymentdomain.CanonicalEvent, error) {
	adapter, ok := s.registry.Get(aggregator)
	if !ok {
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrUnknownAggregator, aggregator)
	}

	event, err := adapter.Parse(payload)
	if err != nil {
		return nil, err
	}

	payment, err := s.findPayment(ctx, event)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	payment.CallbackHistory, err = appendHistory(payment.CallbackHistory, payload, now)
	if err != nil {
		return nil, err
	}
	if payment.ExternalTransactionID == "" {
		payment.ExternalTransactionID = event.ExternalTransactionID
	}
	if payment.OperatorID == "" {
		payment.OperatorID = event.OperatorID
	}
	if len(payment.Metadata) == 0 && len(event.Beneficiaries) > 0 {
		if meta, err := json.Marshal(map[string]any{"beneficiaries": event.Beneficiaries}); err == nil {
			payment.Metadata = meta
		}
	}
	payment.UpdatedAt = now

	switch event.Status {
	case paymentdomain.EventSucceeded:
		if err := s.applySuccess(ctx, payment, now); err != nil {
			return nil, err
		}
	case paymentdomain.EventFailed:
		if err := s.applyFailure(ctx, payment, event); err != nil {
			return nil, err
		}
	case paymentdomain.EventPending, paymentdomain.EventCancelled:
		// Status-only: a cancelled attempt does not release the quote, the
		// customer restarts checkout from the payment page instead.
		if payment.Status != paymentdomain.PaymentStatusSucceeded && event.Status == paymentdomain.EventCancelled {
			payment.Status = paymentdomain.PaymentStatusCancelled
		}
		if err := s.repo.Update(ctx, payment); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unhandled status %s", paymentdomain.ErrInvalidCallback, event.Status)
	}

	s.log.Info("callback reconciled",
		zap.String("aggregator", adapter.Name()),
		zap.String("payment_reference", payment.Reference),
		zap.String("status", string(event.Status)))
	return event, nil
}

func (s *Service) findPayment(ctx context.Context, event *paymentdomain.CanonicalEvent) (*paymentdomain.Payment, error) {
	if event.PaymentReference != "" {
		p, err := s.repo.FindByReference(ctx, event.PaymentReference)
		if err != nil || p != nil {
			return p, err
		}
	}
	if event.ExternalTransactionID != "" {
		p, err := s.repo.FindByExternalTransactionID(ctx, event.ExternalTransactionID)
		if err != nil || p != nil {
			return p, err
		}
	}
	return nil, paymentdomain.ErrPaymentNotFound
}

// applySuccess marks the payment paid on its first success observation and
// drives the quote to PAID and the contract into existence on every one.
func (s *Service) applySuccess(ctx context.Context, payment *paymentdomain.Payment, now time.Time) error {
	if payment.Status != paymentdomain.PaymentStatusSucceeded {
		payment.Status = paymentdomain.PaymentStatusSucceeded
		payment.ErrorMessage = ""
		paidAt := now
		payment.PaidAt = &paidAt
	}
	if err := s.repo.Update(ctx, payment); err != nil {
		return err
	}

	if err := s.quoteSvc.OnPaymentSucceeded(ctx, payment.QuoteID); err != nil {
		return err
	}

	contract, err := s.contractSvc.IssueFromQuote(ctx, payment.QuoteID)
	if err != nil {
		return err
	}
	if payment.ContractID == nil || *payment.ContractID != contract.ID {
		payment.ContractID = &contract.ID
		return s.repo.Update(ctx, payment)
	}
	return nil
}

// applyFailure records the failure and releases the quote for another
// attempt. A payment that already succeeded is never downgraded; the late
// failure stays visible in the callback history only.
func (s *Service) applyFailure(ctx context.Context, payment *paymentdomain.Payment, event *paymentdomain.CanonicalEvent) error {
	if payment.Status == paymentdomain.PaymentStatusSucceeded {
		s.log.Warn("ignoring failure callback for succeeded payment",
			zap.String("payment_reference", payment.Reference))
		return s.repo.Update(ctx, payment)
	}

	payment.Status = paymentdomain.PaymentStatusFailed
	if event.ErrorMessage != "" {
		payment.ErrorMessage = event.ErrorMessage
	}
	if err := s.repo.Update(ctx, payment); err != nil {
		return err
	}

	if err := s.quoteSvc.OnPaymentFailed(ctx, payment.QuoteID); err != nil {
		// The quote may have been paid through another attempt meanwhile;
		// the failure is already recorded on this payment.
		if errors.Is(err, quotedomain.ErrInvalidState) {
			s.log.Warn("quote not releasable after failed payment",
				zap.String("quote_reference", payment.QuoteReference))
			return nil
		}
		return err
	}
	return nil
}

func appendHistory(history datatypes.JSON, payload map[string]any, at time.Time) (datatypes.JSON, error) {
	var entries []json.RawMessage
	if len(history) > 0 {
		if err := json.Unmarshal(history, &entries); err != nil {
			return nil, err
		}
	}
	entry, err := json.Marshal(map[string]any{
		"received_at": at.UTC().Format(time.RFC3339),
		"payload":     payload,
	})
	if err != nil {
		return nil, err
	}
	entries = append(entries, entry)
	return json.Marshal(entries)
}

var Module = fx.Module("payment.webhook",
	fx.Provide(NewService),
)
