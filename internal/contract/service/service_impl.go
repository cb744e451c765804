package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/assurline/assurline/internal/clock"
	"github.com/assurline/assurline/internal/config"
	contractdomain "github.com/assurline/assurline/internal/contract/domain"
	"github.com/assurline/assurline/internal/contract/repository"
	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
	paymentrepository "github.com/assurline/assurline/internal/payment/repository"
	quotedomain "github.com/assurline/assurline/internal/quote/domain"
	"github.com/assurline/assurline/internal/reference"
	tariffdomain "github.com/assurline/assurline/internal/tariff/domain"
	tariffrepository "github.com/assurline/assurline/internal/tariff/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const numberWidth = 5

type Service struct {
	log         *zap.Logger
	repo        contractdomain.Repository
	paymentRepo paymentdomain.Repository
	tariffRepo  tariffdomain.Repository
	quoteSvc    quotedomain.Service
	gen         *reference.Generator
	genID       *snowflake.Node
	clock       clock.Clock
	agencyCode  string
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	QuoteSvc quotedomain.Service
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
}

type numberSequencer struct {
	repo contractdomain.Repository
}

func (s numberSequencer) MaxWithPrefix(ctx context.Context, prefix string) (string, error) {
	return s.repo.MaxNumberWithPrefix(ctx, prefix)
}

func NewService(p ServiceParam) contractdomain.Service {
	repo := repository.NewRepository(p.DB)
	return &Service{
		log:         p.Log.Named("contract.service"),
		repo:        repo,
		paymentRepo: paymentrepository.NewRepository(p.DB),
		tariffRepo:  tariffrepository.NewRepository(p.DB),
		quoteSvc:    p.QuoteSvc,
		gen:         reference.NewGenerator(numberSequencer{repo: repo}),
		genID:       p.GenID,
		clock:       p.Clock,
		agencyCode:  p.Cfg.AgencyCode,
	}
}

// paymentMetadata is the slice of the payment metadata blob issuance cares
// about. Aggregator callbacks may carry designated beneficiaries.
type paymentMetadata struct {
	Beneficiaries []paymentdomain.BeneficiaryData `json:"beneficiaries,omitempty"`
}

// IssueFromQuote issues the contract for a paid quote. The unique index on
// quote_id makes concurrent issuance race to a single winner; the loser
// re-reads and returns the winner's contract.
func (s *Service) IssueFromQuote(ctx context.Context, quoteID snowflake.ID) (*contractdomain.Contract, error) {
	existing, err := s.repo.FindByQuoteID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	quote, err := s.quoteSvc.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Status != quotedomain.QuoteStatusPaid {
		return nil, quotedomain.ErrInvalidState
	}

	product, err := s.tariffRepo.GetProduct(ctx, quote.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, tariffdomain.ErrProductNotFound
	}

	code := quote.CategoryCode
	if code == "" {
		code = product.CategoryCode
	}
	if code == "" {
		return nil, contractdomain.ErrMissingCategory
	}
	category, err := s.tariffRepo.GetCategoryByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, fmt.Errorf("%w: %s", contractdomain.ErrMissingCategory, code)
	}

	payment, err := s.paymentRepo.FindSucceededByQuoteID(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	effectiveAt := now
	var paymentID *snowflake.ID
	var beneficiaries []contractdomain.Beneficiary
	if payment != nil {
		paymentID = &payment.ID
		if payment.PaidAt != nil {
			effectiveAt = *payment.PaidAt
		}
		beneficiaries = s.beneficiariesFrom(payment, product.MaxBeneficiaries, now)
	}

	prefix := fmt.Sprintf("%s-%s", s.agencyCode, category.Code)

	var contract *contractdomain.Contract
	err = reference.Insert(ctx, func(ctx context.Context) error {
		number, err := s.gen.Next(ctx, reference.Scope{Prefix: prefix, Width: numberWidth})
		if err != nil {
			return err
		}
		contract = &contractdomain.Contract{
			ID:             s.genID.Generate(),
			Number:         number,
			QuoteID:        quote.ID,
			QuoteReference: quote.Reference,
			ProductID:      quote.ProductID,
			GridID:         quote.GridID,
			PaymentID:      paymentID,
			OwnerID:        quote.OwnerID,
			CategoryCode:   category.Code,
			Premium:        quote.Premium,
			Deductible:     quote.Deductible,
			Cap:            quote.Cap,
			Status:         contractdomain.ContractStatusActive,
			Insured:        quote.Insured,
			Criteria:       quote.Criteria,
			EffectiveAt:    effectiveAt,
			ExpiresAt:      effectiveAt.AddDate(1, 0, 0),
			Beneficiaries:  beneficiaries,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		for i := range contract.Beneficiaries {
			contract.Beneficiaries[i].ContractID = contract.ID
		}
		return s.repo.Insert(ctx, contract)
	})
	if err != nil {
		// A concurrent issuance for the same quote trips the quote_id unique
		// index until the retry budget runs out; the winner's row is the
		// contract for everyone.
		if won, findErr := s.repo.FindByQuoteID(ctx, quoteID); findErr == nil && won != nil {
			return won, nil
		}
		return nil, err
	}

	if err := s.quoteSvc.Convert(ctx, quote.ID); err != nil {
		return nil, err
	}

	s.log.Info("contract issued",
		zap.String("number", contract.Number),
		zap.String("quote_reference", quote.Reference))
	return contract, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, contractdomain.ErrContractNotFound
	}
	return c, nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*contractdomain.Contract, error) {
	c, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, contractdomain.ErrContractNotFound
	}
	return c, nil
}

func (s *Service) beneficiariesFrom(payment *paymentdomain.Payment, limit int, now time.Time) []contractdomain.Beneficiary {
	if len(payment.Metadata) == 0 {
		return nil
	}
	var meta paymentMetadata
	if err := json.Unmarshal(payment.Metadata, &meta); err != nil {
		s.log.Warn("unreadable payment metadata",
			zap.String("payment_reference", payment.Reference), zap.Error(err))
		return nil
	}
	if limit > 0 && len(meta.Beneficiaries) > limit {
		meta.Beneficiaries = meta.Beneficiaries[:limit]
	}
	out := make([]contractdomain.Beneficiary, 0, len(meta.Beneficiaries))
	for i, b := range meta.Beneficiaries {
		rank := b.Rank
		if rank <= 0 {
			rank = i + 1
		}
		out = append(out, contractdomain.Beneficiary{
			ID:           s.genID.Generate(),
			Name:         b.Name,
			Relationship: b.Relationship,
			Rank:         rank,
			CreatedAt:    now,
		})
	}
	return out
}
