package formula

import (
	"fmt"
	"math"
)

// evalCall dispatches the closed builtin set. Unknown function names are
// rejected; there is no mechanism to register additional functions at runtime.
func evalCall(n *callNode, vars map[string]any) (any, error) {
	// IF is lazy like the ternary operator, so it is handled before the
	// arguments are evaluated.
	if n.fn == "IF" {
		if len(n.args) != 3 {
			return nil, arityError(n.fn, 3, len(n.args))
		}
		cond, err := eval(n.args[0], vars)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return eval(n.args[1], vars)
		}
		return eval(n.args[2], vars)
	}

	args := make([]any, len(n.args))
	for i, a := range n.args {
		v, err := eval(a, vars)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch n.fn {
	case "MAX", "MIN":
		return evalMinMax(n.fn, args)
	case "ABS":
		return unaryMath(n.fn, args, math.Abs)
	case "CEIL":
		return unaryMath(n.fn, args, math.Ceil)
	case "FLOOR":
		return unaryMath(n.fn, args, math.Floor)
	case "SQRT":
		if len(args) != 1 {
			return nil, arityError(n.fn, 1, len(args))
		}
		f, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		if f < 0 {
			return nil, fmt.Errorf("%w: SQRT of negative value", ErrInvalidExpression)
		}
		return math.Sqrt(f), nil
	case "ROUND":
		return evalRound(args)
	case "POW":
		if len(args) != 2 {
			return nil, arityError(n.fn, 2, len(args))
		}
		base, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		exp, err := toNumber(args[1])
		if err != nil {
			return nil, err
		}
		return math.Pow(base, exp), nil
	case "LOOKUP":
		return evalLookup(args)
	case "LOOKUP_TABLE":
		return evalLookupTable(args)
	case "TRANCHE":
		return evalTranche(args)
	case "PERCENTAGE":
		if len(args) != 2 {
			return nil, arityError(n.fn, 2, len(args))
		}
		value, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		pct, err := toNumber(args[1])
		if err != nil {
			return nil, err
		}
		return value * pct / 100, nil
	case "PROGRESSIVE":
		return evalProgressive(args)
	case "YEARS_BETWEEN":
		return evalYearsBetween(args)
	default:
		return nil, fmt.Errorf("%w: unknown function %q", ErrInvalidExpression, n.fn)
	}
}

func arityError(fn string, want, got int) error {
	return fmt.Errorf("%w: %s expects %d arguments, got %d", ErrInvalidExpression, fn, want, got)
}

func unaryMath(fn string, args []any, f func(float64) float64) (any, error) {
	if len(args) != 1 {
		return nil, arityError(fn, 1, len(args))
	}
	v, err := toNumber(args[0])
	if err != nil {
		return nil, err
	}
	return f(v), nil
}

func evalMinMax(fn string, args []any) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("%w: %s expects at least 1 argument", ErrInvalidExpression, fn)
	}
	best, err := toNumber(args[0])
	if err != nil {
		return nil, err
	}
	for _, a := range args[1:] {
		v, err := toNumber(a)
		if err != nil {
			return nil, err
		}
		if (fn == "MAX" && v > best) || (fn == "MIN" && v < best) {
			best = v
		}
	}
	return best, nil
}

func evalRound(args []any) (any, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, fmt.Errorf("%w: ROUND expects 1 or 2 arguments", ErrInvalidExpression)
	}
	v, err := toNumber(args[0])
	if err != nil {
		return nil, err
	}
	places := 0.0
	if len(args) == 2 {
		places, err = toNumber(args[1])
		if err != nil {
			return nil, err
		}
	}
	shift := math.Pow(10, math.Trunc(places))
	return math.Round(v*shift) / shift, nil
}

func evalLookup(args []any) (any, error) {
	if len(args) != 2 {
		return nil, arityError("LOOKUP", 2, len(args))
	}
	table, ok := args[1].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: LOOKUP table must be a map", ErrInvalidExpression)
	}
	key := toStringKey(args[0])
	v, ok := table[key]
	if !ok {
		return nil, fmt.Errorf("%w: LOOKUP key %q not found", ErrInvalidExpression, key)
	}
	return v, nil
}

func evalLookupTable(args []any) (any, error) {
	if len(args) != 3 {
		return nil, arityError("LOOKUP_TABLE", 3, len(args))
	}
	table, ok := args[2].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: LOOKUP_TABLE table must be a map", ErrInvalidExpression)
	}
	rowKey := toStringKey(args[0])
	row, ok := table[rowKey]
	if !ok {
		return nil, fmt.Errorf("%w: LOOKUP_TABLE row %q not found", ErrInvalidExpression, rowKey)
	}
	rowMap, ok := row.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: LOOKUP_TABLE row %q is not a map", ErrInvalidExpression, rowKey)
	}
	colKey := toStringKey(args[1])
	v, ok := rowMap[colKey]
	if !ok {
		return nil, fmt.Errorf("%w: LOOKUP_TABLE cell %q/%q not found", ErrInvalidExpression, rowKey, colKey)
	}
	return v, nil
}

type band struct {
	min  float64
	max  float64 // +Inf when open-ended
	rate float64
}

func parseBands(v any) ([]band, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: bands must be a list", ErrInvalidExpression)
	}
	out := make([]band, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: band must be a map", ErrInvalidExpression)
		}
		var b band
		var err error
		if b.min, err = toNumber(m["min"]); err != nil {
			return nil, fmt.Errorf("%w: band is missing min", ErrInvalidExpression)
		}
		b.max = math.Inf(1)
		if raw, ok := m["max"]; ok && raw != nil {
			if b.max, err = toNumber(raw); err != nil {
				return nil, err
			}
		}
		if b.rate, err = toNumber(m["rate"]); err != nil {
			return nil, fmt.Errorf("%w: band is missing rate", ErrInvalidExpression)
		}
		out = append(out, b)
	}
	return out, nil
}

// TRANCHE returns the rate of the band containing value.
func evalTranche(args []any) (any, error) {
	if len(args) != 2 {
		return nil, arityError("TRANCHE", 2, len(args))
	}
	value, err := toNumber(args[0])
	if err != nil {
		return nil, err
	}
	bands, err := parseBands(args[1])
	if err != nil {
		return nil, err
	}
	for _, b := range bands {
		if value >= b.min && value <= b.max {
			return b.rate, nil
		}
	}
	return nil, fmt.Errorf("%w: no band contains %v", ErrInvalidExpression, value)
}

// PROGRESSIVE applies each band's rate (a percentage) to the slice of amount
// falling inside that band and sums the results.
func evalProgressive(args []any) (any, error) {
	if len(args) != 2 {
		return nil, arityError("PROGRESSIVE", 2, len(args))
	}
	amount, err := toNumber(args[0])
	if err != nil {
		return nil, err
	}
	bands, err := parseBands(args[1])
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, b := range bands {
		if amount <= b.min {
			continue
		}
		upper := math.Min(amount, b.max)
		total += (upper - b.min) * b.rate / 100
	}
	return total, nil
}

func evalYearsBetween(args []any) (any, error) {
	if len(args) != 2 {
		return nil, arityError("YEARS_BETWEEN", 2, len(args))
	}
	d1, err := parseDate(args[0])
	if err != nil {
		return nil, err
	}
	d2, err := parseDate(args[1])
	if err != nil {
		return nil, err
	}
	if d2.Before(d1) {
		d1, d2 = d2, d1
	}
	years := d2.Year() - d1.Year()
	anniversary := d1.AddDate(years, 0, 0)
	if anniversary.After(d2) {
		years--
	}
	return float64(years), nil
}
