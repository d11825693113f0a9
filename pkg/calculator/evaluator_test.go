package calculator

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func num(v float64) Token { return NumberToken(v) }

func op(o Operator) Token { return OperatorToken(o) }

func postfixOf(t ...Token) Postfix { return Postfix(t) }

func TestOperatorPrecedence(t *testing.T) {
	for o, want := range map[Operator]int{OpAdd: 1, OpSub: 1, OpMul: 2, OpDiv: 2} {
		got, err := o.Precedence()
		require.NoError(t, err)
		assert.Equal(t, want, got, o.String())
	}

	_, err := Operator('^').Precedence()
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestToPostfix(t *testing.T) {
	tests := []struct {
		name  string
		infix Infix
		want  string
	}{
		{"single number", Infix{num(7)}, "7"},
		{"higher precedence right", Infix{num(3), op(OpAdd), num(5), op(OpMul), num(2)}, "3 5 2 * +"},
		{"higher precedence left", Infix{num(2), op(OpMul), num(3), op(OpAdd), num(4)}, "2 3 * 4 +"},
		{"left associative minus", Infix{num(10), op(OpSub), num(3), op(OpSub), num(2)}, "10 3 - 2 -"},
		{"left associative divide", Infix{num(20), op(OpDiv), num(2), op(OpDiv), num(5)}, "20 2 / 5 /"},
		{"mixed equal precedence", Infix{num(8), op(OpDiv), num(4), op(OpMul), num(2)}, "8 4 / 2 *"},
		{"flush in LIFO order", Infix{num(1), op(OpAdd), num(2), op(OpMul), num(3), op(OpDiv), num(4)}, "1 2 3 * 4 / +"},
		{"empty", Infix{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToPostfix(tt.infix)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestToPostfixUnknownOperator(t *testing.T) {
	_, err := ToPostfix(Infix{num(1), op(Operator('%')), num(2)})
	assert.ErrorIs(t, err, ErrUnknownOperator)

	_, err = ToPostfix(Infix{num(1), {}, num(2)})
	assert.ErrorIs(t, err, ErrUnknownOperator, "zero token")
}

func TestEvaluate(t *testing.T) {
	e := NewEvaluator(DivisionIEEE)

	tests := []struct {
		name    string
		postfix Postfix
		want    float64
	}{
		{"single", postfixOf(num(4)), 4},
		{"add", postfixOf(num(3), num(5), op(OpAdd)), 8},
		{"operand order for minus", postfixOf(num(10), num(3), op(OpSub)), 7},
		{"operand order for divide", postfixOf(num(9), num(3), op(OpDiv)), 3},
		{"nested", postfixOf(num(3), num(5), num(2), op(OpMul), op(OpAdd)), 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.postfix)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateMalformed(t *testing.T) {
	e := NewEvaluator(DivisionIEEE)

	_, err := e.Evaluate(postfixOf())
	assert.ErrorIs(t, err, ErrEmptyResult)
	assert.ErrorIs(t, err, ErrMalformedExpression, "empty result is a malformed expression")

	_, err = e.Evaluate(postfixOf(num(1), num(2)))
	assert.ErrorIs(t, err, ErrMalformedExpression)
	assert.False(t, errors.Is(err, ErrEmptyResult))

	_, err = e.Evaluate(postfixOf(op(OpAdd)))
	assert.ErrorIs(t, err, ErrMalformedExpression, "pop from empty stack")

	_, err = e.Evaluate(postfixOf(num(1), op(OpAdd)))
	assert.ErrorIs(t, err, ErrMalformedExpression, "missing left operand")

	var ee *ExpressionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 1, ee.Position)
	assert.Equal(t, ErrCategoryEvaluation, ee.Category())
}

func TestDivisionByZeroIEEE(t *testing.T) {
	e := NewEvaluator(DivisionIEEE)

	got, err := e.Evaluate(postfixOf(num(1), num(0), op(OpDiv)))
	require.NoError(t, err)
	assert.True(t, math.IsInf(got, 1))

	got, err = e.Evaluate(postfixOf(num(0), num(1), op(OpSub), num(0), op(OpDiv)))
	require.NoError(t, err)
	assert.True(t, math.IsInf(got, -1))

	got, err = e.Evaluate(postfixOf(num(0), num(0), op(OpDiv)))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got))
}

func TestDivisionByZeroStrict(t *testing.T) {
	e := NewEvaluator(DivisionStrict)

	_, err := e.Evaluate(postfixOf(num(1), num(0), op(OpDiv)))
	assert.ErrorIs(t, err, ErrDivisionByZero)

	var ee *ExpressionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 2, ee.Position)

	got, err := e.Evaluate(postfixOf(num(0), num(4), op(OpDiv)))
	require.NoError(t, err)
	assert.Equal(t, 0.0, got, "zero numerator is fine")
}

func TestParseDivisionMode(t *testing.T) {
	assert.Equal(t, DivisionStrict, ParseDivisionMode(" Strict "))
	assert.Equal(t, DivisionIEEE, ParseDivisionMode("ieee"))
	assert.Equal(t, DivisionIEEE, ParseDivisionMode("bogus"))
	assert.Equal(t, "strict", DivisionStrict.String())
	assert.Equal(t, "ieee", DivisionIEEE.String())
}

func TestStack(t *testing.T) {
	s := newStack[int](0)
	_, ok := s.pop()
	assert.False(t, ok)

	s.push(1)
	s.push(2)
	v, ok := s.pop()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	v, _ = s.pop()
	assert.Equal(t, 1, v)
	_, ok = s.pop()
	assert.False(t, ok)
}
