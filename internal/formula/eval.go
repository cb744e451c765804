package formula

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidExpression covers every lexing, parsing and evaluation failure,
// including non-numeric, NaN or infinite results.
var ErrInvalidExpression = errors.New("invalid_expression")

// VarSpec is the declared schema of one formula variable.
type VarSpec struct {
	Type        string `json:"type"`
	Default     any    `json:"default"`
	Description string `json:"description,omitempty"`
}

// Evaluate parses expr and evaluates it against the supplied variables. The
// result is rounded to 2 decimal places. Variables must already be resolved to
// concrete values; merging schema defaults is the caller's concern.
func Evaluate(expr string, vars map[string]any) (decimal.Decimal, error) {
	root, err := parse(expr)
	if err != nil {
		return decimal.Zero, err
	}
	out, err := eval(root, vars)
	if err != nil {
		return decimal.Zero, err
	}
	n, err := toNumber(out)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: result is not numeric", ErrInvalidExpression)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return decimal.Zero, fmt.Errorf("%w: result is not finite", ErrInvalidExpression)
	}
	return decimal.NewFromFloat(n).Round(2), nil
}

// ValidateWithDefaults evaluates expr once with every variable at its declared
// default. Formulas are rejected at save time when this fails.
func ValidateWithDefaults(expr string, schema map[string]VarSpec) error {
	vars := make(map[string]any, len(schema))
	for name, spec := range schema {
		vars[name] = spec.Default
	}
	_, err := Evaluate(expr, vars)
	return err
}

func eval(n node, vars map[string]any) (any, error) {
	switch n := n.(type) {
	case *numberNode:
		return n.value, nil
	case *stringNode:
		return n.value, nil
	case *identNode:
		switch n.name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		v, ok := vars[n.name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown variable %q", ErrInvalidExpression, n.name)
		}
		return v, nil
	case *unaryNode:
		return evalUnary(n, vars)
	case *binaryNode:
		return evalBinary(n, vars)
	case *ternaryNode:
		cond, err := eval(n.cond, vars)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return eval(n.then, vars)
		}
		return eval(n.els, vars)
	case *callNode:
		return evalCall(n, vars)
	default:
		return nil, fmt.Errorf("%w: unknown node", ErrInvalidExpression)
	}
}

func evalUnary(n *unaryNode, vars map[string]any) (any, error) {
	v, err := eval(n.operand, vars)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "-":
		f, err := toNumber(v)
		if err != nil {
			return nil, err
		}
		return -f, nil
	case "!":
		return !truthy(v), nil
	}
	return nil, fmt.Errorf("%w: unknown unary operator %q", ErrInvalidExpression, n.op)
}

func evalBinary(n *binaryNode, vars map[string]any) (any, error) {
	// Short-circuit boolean connectives.
	if n.op == "&&" || n.op == "||" {
		left, err := eval(n.left, vars)
		if err != nil {
			return nil, err
		}
		if n.op == "&&" && !truthy(left) {
			return false, nil
		}
		if n.op == "||" && truthy(left) {
			return true, nil
		}
		right, err := eval(n.right, vars)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}

	left, err := eval(n.left, vars)
	if err != nil {
		return nil, err
	}
	right, err := eval(n.right, vars)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	}

	lf, err := toNumber(left)
	if err != nil {
		return nil, err
	}
	rf, err := toNumber(right)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("%w: division by zero", ErrInvalidExpression)
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("%w: division by zero", ErrInvalidExpression)
		}
		return math.Mod(lf, rf), nil
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidExpression, n.op)
}

func truthy(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	case nil:
		return false
	default:
		return true
	}
}

func looseEqual(a, b any) bool {
	af, aerr := toNumber(a)
	bf, berr := toNumber(b)
	if aerr == nil && berr == nil {
		return af == bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	ab, aok2 := a.(bool)
	bb, bok2 := b.(bool)
	if aok2 && bok2 {
		return ab == bb
	}
	return false
}

func toNumber(v any) (float64, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case decimal.Decimal:
		f, _ := v.Float64()
		return f, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidExpression, v)
		}
		return f, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: value is not numeric", ErrInvalidExpression)
	}
}

func toStringKey(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func parseDate(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: date must be a string", ErrInvalidExpression)
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparsable date %q", ErrInvalidExpression, s)
}
