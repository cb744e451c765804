package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/assurline/assurline/internal/formula"
	tariffdomain "github.com/assurline/assurline/internal/tariff/domain"
	"github.com/assurline/assurline/internal/tariff/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo tariffdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewService(p ServiceParam) tariffdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("tariff.service"),
		repo: repository.NewRepository(p.DB),
	}
}

// ResolveRate computes the premium for a product and criteria set at a given
// evaluation date. Resolution failures are always surfaced; a product with no
// resolvable price never yields a zero premium.
func (s *Service) ResolveRate(ctx context.Context, productID snowflake.ID, date time.Time, criteria map[string]any) (*tariffdomain.RateResolution, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, tariffdomain.ErrProductNotFound
	}

	if product.PricingMode == tariffdomain.PricingModeFormula {
		premium, err := s.resolveFormula(ctx, product, criteria)
		if err != nil {
			return nil, err
		}
		return &tariffdomain.RateResolution{Premium: premium}, nil
	}

	grid, err := s.selectGrid(ctx, productID, date)
	if err != nil {
		return nil, err
	}

	rates, err := s.repo.ListRatesByGrid(ctx, grid.ID)
	if err != nil {
		return nil, err
	}

	matched, err := matchFixedRate(rates, criteria)
	if err != nil {
		return nil, err
	}
	return &tariffdomain.RateResolution{Premium: matched.Amount.Round(2), GridID: &grid.ID}, nil
}

// selectGrid picks the active grid whose validity window contains date. When
// several windows overlap, the most recently started grid wins.
func (s *Service) selectGrid(ctx context.Context, productID snowflake.ID, date time.Time) (*tariffdomain.RateGrid, error) {
	grids, err := s.repo.ListGridsByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	var best *tariffdomain.RateGrid
	for _, g := range grids {
		if g.Status != tariffdomain.GridStatusActive || !g.Covers(date) {
			continue
		}
		if best == nil || g.StartsAt.After(best.StartsAt) {
			best = g
		}
	}
	if best == nil {
		return nil, tariffdomain.ErrNoActiveGrid
	}
	return best, nil
}

// matchFixedRate returns the single rate whose declared criteria all match
// the submitted values. Zero or several matches are both rejected; ambiguity
// must never be resolved by taking the first hit.
func matchFixedRate(rates []*tariffdomain.FixedRate, criteria map[string]any) (*tariffdomain.FixedRate, error) {
	var matched *tariffdomain.FixedRate
	for _, rate := range rates {
		var declared []tariffdomain.RateCriterion
		if err := json.Unmarshal(rate.Criteria, &declared); err != nil {
			return nil, fmt.Errorf("%w: rate %d", tariffdomain.ErrInvalidCriterion, rate.ID)
		}
		ok, err := criteriaMatch(declared, criteria)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if matched != nil {
			return nil, tariffdomain.ErrNoMatchingRate
		}
		matched = rate
	}
	if matched == nil {
		return nil, tariffdomain.ErrNoMatchingRate
	}
	return matched, nil
}

func criteriaMatch(declared []tariffdomain.RateCriterion, submitted map[string]any) (bool, error) {
	if len(declared) == 0 {
		return false, nil
	}
	for _, c := range declared {
		value, ok := submitted[c.Key]
		if !ok {
			return false, nil
		}
		hit, err := criterionMatches(c, value)
		if err != nil {
			return false, err
		}
		if !hit {
			return false, nil
		}
	}
	return true, nil
}

func criterionMatches(c tariffdomain.RateCriterion, submitted any) (bool, error) {
	op := c.Operator
	if op == "" {
		op = tariffdomain.OperatorEquals
	}
	switch op {
	case tariffdomain.OperatorEquals:
		return valuesEqual(c.Value, submitted), nil
	case tariffdomain.OperatorDifferent:
		return !valuesEqual(c.Value, submitted), nil
	case tariffdomain.OperatorGreater, tariffdomain.OperatorLess:
		sv, ok1 := asNumber(submitted)
		cv, ok2 := asNumber(c.Value)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("%w: %s needs numeric values for %q", tariffdomain.ErrInvalidCriterion, op, c.Key)
		}
		if op == tariffdomain.OperatorGreater {
			return sv > cv, nil
		}
		return sv < cv, nil
	case tariffdomain.OperatorBetween, tariffdomain.OperatorNotBetween:
		sv, ok := asNumber(submitted)
		if !ok {
			return false, fmt.Errorf("%w: between needs a numeric value for %q", tariffdomain.ErrInvalidCriterion, c.Key)
		}
		lo, hi, err := boundsOf(c.Value)
		if err != nil {
			return false, fmt.Errorf("%w: %q: %v", tariffdomain.ErrInvalidCriterion, c.Key, err)
		}
		in := sv >= lo && sv <= hi
		if op == tariffdomain.OperatorBetween {
			return in, nil
		}
		return !in, nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", tariffdomain.ErrInvalidCriterion, op)
	}
}

func valuesEqual(a, b any) bool {
	if af, ok := asNumber(a); ok {
		if bf, ok := asNumber(b); ok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asNumber(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// boundsOf accepts either a two-element list or a "lo-hi" string.
func boundsOf(v any) (float64, float64, error) {
	if list, ok := v.([]any); ok {
		if len(list) != 2 {
			return 0, 0, fmt.Errorf("bounds need exactly 2 elements")
		}
		lo, ok1 := asNumber(list[0])
		hi, ok2 := asNumber(list[1])
		if !ok1 || !ok2 {
			return 0, 0, fmt.Errorf("bounds must be numeric")
		}
		return lo, hi, nil
	}
	if s, ok := v.(string); ok {
		parts := strings.SplitN(s, "-", 2)
		if len(parts) == 2 {
			lo, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			hi, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err1 == nil && err2 == nil {
				return lo, hi, nil
			}
		}
	}
	return 0, 0, fmt.Errorf("unparsable bounds %v", v)
}

func (s *Service) resolveFormula(ctx context.Context, product *tariffdomain.Product, criteria map[string]any) (decimal.Decimal, error) {
	f, err := s.repo.GetActiveFormula(ctx, product.ID)
	if err != nil {
		return decimal.Zero, err
	}
	if f == nil {
		return decimal.Zero, tariffdomain.ErrFormulaNotFound
	}

	schema, err := decodeSchema(f.Variables)
	if err != nil {
		return decimal.Zero, err
	}

	// Caller criteria win over schema defaults.
	vars := make(map[string]any, len(schema)+len(criteria))
	for name, spec := range schema {
		vars[name] = spec.Default
	}
	for k, v := range criteria {
		vars[k] = v
	}

	amount, err := formula.Evaluate(f.Expression, vars)
	if err != nil {
		s.log.Warn("formula evaluation failed",
			zap.String("product", product.Reference),
			zap.Int64("formula_id", int64(f.ID)),
			zap.Error(err))
		return decimal.Zero, err
	}
	return amount, nil
}

// GetProduct resolves a product by its catalog reference.
func (s *Service) GetProduct(ctx context.Context, ref string) (*tariffdomain.Product, error) {
	product, err := s.repo.GetProductByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, tariffdomain.ErrProductNotFound
	}
	return product, nil
}

// SaveFormula validates the expression against the declared defaults before
// persisting; a formula that cannot evaluate is rejected.
func (s *Service) SaveFormula(ctx context.Context, f *tariffdomain.Formula) error {
	schema, err := decodeSchema(f.Variables)
	if err != nil {
		return err
	}
	if err := formula.ValidateWithDefaults(f.Expression, schema); err != nil {
		return err
	}
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	return s.repo.SaveFormula(ctx, f)
}

func decodeSchema(raw []byte) (map[string]formula.VarSpec, error) {
	schema := map[string]formula.VarSpec{}
	if len(raw) == 0 {
		return schema, nil
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("%w: variable schema: %v", formula.ErrInvalidExpression, err)
	}
	return schema, nil
}
