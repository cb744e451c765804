package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_Arithmetic(t *testing.T) {
	tests := []struct {
		name string
		expr string
		vars map[string]any
		want string
	}{
		{"constant", "42", nil, "42"},
		{"precedence", "2 + 3 * 4", nil, "14"},
		{"parens", "(2 + 3) * 4", nil, "20"},
		{"unary minus", "-5 + 10", nil, "5"},
		{"modulo", "10 % 3", nil, "1"},
		{"variable", "age * 2", map[string]any{"age": 30.0}, "60"},
		{"string variable coerced", "age * 2", map[string]any{"age": "21"}, "42"},
		{"ternary true", "age >= 18 ? 100 : 200", map[string]any{"age": 25.0}, "100"},
		{"ternary false", "age >= 18 ? 100 : 200", map[string]any{"age": 12.0}, "200"},
		{"boolean connectives", "age > 18 && age < 65 ? 1 : 0", map[string]any{"age": 40.0}, "1"},
		{"rounding", "10 / 3", nil, "3.33"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestEvaluate_Builtins(t *testing.T) {
	bands := []any{
		map[string]any{"min": 0.0, "max": 1000.0, "rate": 5.0},
		map[string]any{"min": 1000.0, "max": 5000.0, "rate": 3.0},
		map[string]any{"min": 5000.0, "rate": 1.0},
	}
	tests := []struct {
		name string
		expr string
		vars map[string]any
		want string
	}{
		{"max", "MAX(1, 7, 3)", nil, "7"},
		{"min", "MIN(4, 2, 9)", nil, "2"},
		{"abs", "ABS(0 - 12)", nil, "12"},
		{"ceil", "CEIL(1.2)", nil, "2"},
		{"floor", "FLOOR(1.8)", nil, "1"},
		{"round", "ROUND(2.5)", nil, "3"},
		{"round places", "ROUND(2.456, 2)", nil, "2.46"},
		{"sqrt", "SQRT(81)", nil, "9"},
		{"pow", "POW(2, 10)", nil, "1024"},
		{"if", "IF(age > 18, 50, 75)", map[string]any{"age": 30.0}, "50"},
		{"percentage", "PERCENTAGE(2000, 5)", nil, "100"},
		{
			"lookup",
			"LOOKUP(zone, rates)",
			map[string]any{"zone": "urbain", "rates": map[string]any{"urbain": 150.0, "rural": 90.0}},
			"150",
		},
		{
			"lookup table",
			"LOOKUP_TABLE(zone, cat, grid)",
			map[string]any{
				"zone": "A",
				"cat":  "moto",
				"grid": map[string]any{"A": map[string]any{"moto": 320.0, "auto": 510.0}},
			},
			"320",
		},
		{"tranche first band", "TRANCHE(500, bands)", map[string]any{"bands": bands}, "5"},
		{"tranche open band", "TRANCHE(99999, bands)", map[string]any{"bands": bands}, "1"},
		// 1000*5% + 4000*3% + 1000*1% = 50 + 120 + 10
		{"progressive", "PROGRESSIVE(6000, bands)", map[string]any{"bands": bands}, "180"},
		{"years between", "YEARS_BETWEEN('1990-06-15', '2020-06-14')", nil, "29"},
		{"years between exact", "YEARS_BETWEEN('1990-06-15', '2020-06-15')", nil, "30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

// Premium formula combining a floor with a capital percentage. With age=30 the
// doubled age stays under the floor, so MAX keeps 100.
func TestEvaluate_PremiumFormula(t *testing.T) {
	got, err := Evaluate("MAX(100, age*2) + PERCENTAGE(capital, 2.5)", map[string]any{
		"age":     30.0,
		"capital": 1000000.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "25100.00", got.StringFixed(2))

	// Past the floor the doubled age wins.
	got, err = Evaluate("MAX(100, age*2) + PERCENTAGE(capital, 2.5)", map[string]any{
		"age":     80.0,
		"capital": 1000000.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "25160.00", got.StringFixed(2))
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		vars map[string]any
	}{
		{"empty", "", nil},
		{"unterminated string", "'abc", nil},
		{"unknown variable", "prime * 2", nil},
		{"unknown function", "EVIL(1)", nil},
		{"host access attempt", "require('fs')", nil},
		{"division by zero", "1 / 0", nil},
		{"sqrt negative", "SQRT(0 - 1)", nil},
		{"string result", "'abc'", nil},
		{"lookup missing key", "LOOKUP('x', t)", map[string]any{"t": map[string]any{}}},
		{"tranche no band", "TRANCHE(50, b)", map[string]any{"b": []any{
			map[string]any{"min": 100.0, "max": 200.0, "rate": 1.0},
		}}},
		{"bad arity", "POW(2)", nil},
		{"trailing garbage", "1 + 2 )", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.expr, tt.vars)
			assert.ErrorIs(t, err, ErrInvalidExpression)
		})
	}
}

func TestEvaluate_NeverNaNOrInf(t *testing.T) {
	// Expressions whose naive float evaluation would produce NaN or Inf must
	// surface ErrInvalidExpression instead.
	for _, expr := range []string{
		"POW(10, 400)",
		"0 / 0",
		"POW(0 - 1, 0.5)",
	} {
		_, err := Evaluate(expr, nil)
		assert.ErrorIs(t, err, ErrInvalidExpression, expr)
	}
}

func TestValidateWithDefaults(t *testing.T) {
	schema := map[string]VarSpec{
		"age":     {Type: "number", Default: 30.0},
		"capital": {Type: "number", Default: 500000.0},
	}
	assert.NoError(t, ValidateWithDefaults("MAX(100, age*2) + PERCENTAGE(capital, 2.5)", schema))

	// References a variable the schema does not declare.
	assert.ErrorIs(t, ValidateWithDefaults("prime * taux", schema), ErrInvalidExpression)

	// Evaluates but to a non-numeric result.
	schema["label"] = VarSpec{Type: "string", Default: "vie"}
	assert.ErrorIs(t, ValidateWithDefaults("label", schema), ErrInvalidExpression)
}
