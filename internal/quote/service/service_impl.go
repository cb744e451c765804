package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/assurline/assurline/internal/clock"
	"github.com/assurline/assurline/internal/config"
	quotedomain "github.com/assurline/assurline/internal/quote/domain"
	"github.com/assurline/assurline/internal/quote/repository"
	"github.com/assurline/assurline/internal/reference"
	tariffdomain "github.com/assurline/assurline/internal/tariff/domain"
	tariffrepository "github.com/assurline/assurline/internal/tariff/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const referenceWidth = 4

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       quotedomain.Repository
	tariffSvc  tariffdomain.Service
	tariffRepo tariffdomain.Repository
	gen        *reference.Generator
	genID      *snowflake.Node
	clock      clock.Clock
	expiry     time.Duration
}

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	TariffSvc tariffdomain.Service
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
}

type refSequencer struct {
	repo quotedomain.Repository
}

func (s refSequencer) MaxWithPrefix(ctx context.Context, prefix string) (string, error) {
	return s.repo.MaxReferenceWithPrefix(ctx, prefix)
}

func NewService(p ServiceParam) quotedomain.Service {
	repo := repository.NewRepository(p.DB)
	expiry := p.Cfg.QuoteExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("quote.service"),
		repo:       repo,
		tariffSvc:  p.TariffSvc,
		tariffRepo: tariffrepository.NewRepository(p.DB),
		gen:        reference.NewGenerator(refSequencer{repo: repo}),
		genID:      p.GenID,
		clock:      p.Clock,
		expiry:     expiry,
	}
}

// Create prices the criteria and persists a new simulation. The reference is
// assigned inside the insert-retry loop so a concurrent writer losing the
// race recomputes a fresh number.
func (s *Service) Create(ctx context.Context, input quotedomain.CreateQuoteInput) (*quotedomain.Quote, error) {
	product, err := s.tariffRepo.GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, tariffdomain.ErrProductNotFound
	}

	now := s.clock.Now(ctx)
	date := input.EvaluationDate
	if date.IsZero() {
		date = now
	}

	resolution, err := s.tariffSvc.ResolveRate(ctx, input.ProductID, date, input.Criteria)
	if err != nil {
		return nil, err
	}
	if resolution.Premium.IsNegative() {
		return nil, fmt.Errorf("negative premium for product %s", product.Reference)
	}

	criteriaJSON, err := json.Marshal(input.Criteria)
	if err != nil {
		return nil, err
	}
	var insuredJSON []byte
	if input.Insured != nil {
		if insuredJSON, err = json.Marshal(input.Insured); err != nil {
			return nil, err
		}
	}

	prefix := fmt.Sprintf("%s-%s-", product.Type, date.Format("20060102"))
	expiresAt := now.Add(s.expiry)

	var quote *quotedomain.Quote
	err = reference.Insert(ctx, func(ctx context.Context) error {
		ref, err := s.gen.Next(ctx, reference.Scope{Prefix: prefix, Width: referenceWidth})
		if err != nil {
			return err
		}
		quote = &quotedomain.Quote{
			ID:           s.genID.Generate(),
			Reference:    ref,
			ProductID:    product.ID,
			GridID:       resolution.GridID,
			CategoryCode: product.CategoryCode,
			Criteria:     criteriaJSON,
			Premium:      resolution.Premium.Round(2),
			Status:       quotedomain.QuoteStatusSimulation,
			ExpiresAt:    &expiresAt,
			Insured:      insuredJSON,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return s.repo.Insert(ctx, quote)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("quote created",
		zap.String("reference", quote.Reference),
		zap.String("premium", quote.Premium.StringFixed(2)))
	return quote, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*quotedomain.Quote, error) {
	q, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, quotedomain.ErrQuoteNotFound
	}
	return q, nil
}

func (s *Service) GetByReference(ctx context.Context, ref string) (*quotedomain.Quote, error) {
	q, err := s.repo.FindByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, quotedomain.ErrQuoteNotFound
	}
	return q, nil
}

// Save attaches an owner and moves SIMULATION to SAVED, clearing the expiry.
func (s *Service) Save(ctx context.Context, quoteID, ownerID snowflake.ID) (*quotedomain.Quote, error) {
	q, err := s.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if q.OwnerID != nil && *q.OwnerID != ownerID {
		return nil, quotedomain.ErrForbidden
	}
	now := s.clock.Now(ctx)
	if q.Status == quotedomain.QuoteStatusSimulation && q.ExpiresAt != nil && now.After(*q.ExpiresAt) {
		return nil, quotedomain.ErrExpired
	}
	if !quotedomain.TransitionAllowed(q.Status, quotedomain.QuoteStatusSaved) {
		return nil, quotedomain.ErrInvalidState
	}
	q.Status = quotedomain.QuoteStatusSaved
	q.OwnerID = &ownerID
	q.ExpiresAt = nil
	q.UpdatedAt = now
	if err := s.repo.Update(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// InitiatePayment is the only entry point into AWAITING_PAYMENT.
func (s *Service) InitiatePayment(ctx context.Context, quoteID snowflake.ID) (*quotedomain.Quote, error) {
	q, err := s.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if !quotedomain.TransitionAllowed(q.Status, quotedomain.QuoteStatusAwaitingPayment) {
		return nil, quotedomain.ErrInvalidState
	}
	q.Status = quotedomain.QuoteStatusAwaitingPayment
	q.UpdatedAt = s.clock.Now(ctx)
	if err := s.repo.Update(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// OnPaymentSucceeded is idempotent: success callbacks are delivered at least
// once, so a quote already PAID or CONVERTED is a no-op.
func (s *Service) OnPaymentSucceeded(ctx context.Context, quoteID snowflake.ID) error {
	q, err := s.Get(ctx, quoteID)
	if err != nil {
		return err
	}
	switch q.Status {
	case quotedomain.QuoteStatusPaid, quotedomain.QuoteStatusConverted:
		return nil
	case quotedomain.QuoteStatusAwaitingPayment:
		q.Status = quotedomain.QuoteStatusPaid
		q.UpdatedAt = s.clock.Now(ctx)
		return s.repo.Update(ctx, q)
	default:
		return quotedomain.ErrInvalidState
	}
}

// OnPaymentFailed returns the quote to SAVED so payment can be retried.
func (s *Service) OnPaymentFailed(ctx context.Context, quoteID snowflake.ID) error {
	q, err := s.Get(ctx, quoteID)
	if err != nil {
		return err
	}
	switch q.Status {
	case quotedomain.QuoteStatusSaved:
		// Duplicate failure delivery.
		return nil
	case quotedomain.QuoteStatusAwaitingPayment:
		q.Status = quotedomain.QuoteStatusSaved
		q.UpdatedAt = s.clock.Now(ctx)
		return s.repo.Update(ctx, q)
	default:
		return quotedomain.ErrInvalidState
	}
}

// Convert marks the quote consumed by contract issuance. Already-converted
// quotes are a no-op; issuance returns the existing contract.
func (s *Service) Convert(ctx context.Context, quoteID snowflake.ID) error {
	q, err := s.Get(ctx, quoteID)
	if err != nil {
		return err
	}
	if q.Status == quotedomain.QuoteStatusConverted {
		return nil
	}
	if !quotedomain.TransitionAllowed(q.Status, quotedomain.QuoteStatusConverted) {
		return quotedomain.ErrInvalidState
	}
	q.Status = quotedomain.QuoteStatusConverted
	q.UpdatedAt = s.clock.Now(ctx)
	return s.repo.Update(ctx, q)
}

// Delete removes an unconverted quote on explicit owner request.
func (s *Service) Delete(ctx context.Context, quoteID, ownerID snowflake.ID) error {
	q, err := s.Get(ctx, quoteID)
	if err != nil {
		return err
	}
	if q.OwnerID != nil && *q.OwnerID != ownerID {
		return quotedomain.ErrForbidden
	}
	if q.Status == quotedomain.QuoteStatusConverted {
		return quotedomain.ErrInvalidState
	}
	return s.repo.Delete(ctx, quoteID)
}

// SweepExpired transitions overdue simulations to EXPIRED. Saved quotes are
// exempt because saving clears the expiry.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.clock.Now(ctx)
	n, err := s.repo.ExpireSimulationsBefore(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired quotes swept", zap.Int("count", n))
	}
	return n, nil
}
