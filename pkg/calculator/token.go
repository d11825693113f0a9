package calculator

import (
	"math"
	"strconv"
	"strings"
)

// Operator is one of the four binary arithmetic operators.
type Operator byte

// Supported operators
const (
	OpAdd Operator = '+'
	OpSub Operator = '-'
	OpMul Operator = '*'
	OpDiv Operator = '/'
)

// precedence ranks; higher binds tighter
var precedence = map[Operator]int{
	OpMul: 2,
	OpDiv: 2,
	OpAdd: 1,
	OpSub: 1,
}

// String returns the operator symbol
func (o Operator) String() string {
	return string(o)
}

// Precedence returns the rank of the operator (2 for * and /, 1 for + and -).
func (o Operator) Precedence() (int, error) {
	rank, ok := precedence[o]
	if !ok {
		return 0, newError(ErrUnknownOperator, string(o), -1)
	}
	return rank, nil
}

// DivisionMode selects how division by zero is handled.
type DivisionMode int

const (
	// DivisionIEEE lets IEEE-754 produce +Inf, -Inf or NaN.
	DivisionIEEE DivisionMode = iota
	// DivisionStrict fails with ErrDivisionByZero.
	DivisionStrict
)

// ParseDivisionMode maps a configuration value to a DivisionMode.
// Unknown values fall back to DivisionIEEE.
func ParseDivisionMode(s string) DivisionMode {
	if strings.EqualFold(strings.TrimSpace(s), "strict") {
		return DivisionStrict
	}
	return DivisionIEEE
}

// String returns the configuration spelling of the mode
func (m DivisionMode) String() string {
	if m == DivisionStrict {
		return "strict"
	}
	return "ieee"
}

// Apply computes left <op> right.
func (o Operator) Apply(left, right float64, mode DivisionMode) (float64, error) {
	switch o {
	case OpAdd:
		return left + right, nil
	case OpSub:
		return left - right, nil
	case OpMul:
		return left * right, nil
	case OpDiv:
		if right == 0 && mode == DivisionStrict {
			return 0, newError(ErrDivisionByZero, "/", -1)
		}
		return left / right, nil
	}
	return 0, newError(ErrUnknownOperator, string(o), -1)
}

// tokenKind tags the variant held by a Token
type tokenKind uint8

const (
	kindNumber tokenKind = iota + 1
	kindOperator
)

// Token is either a number or an operator. The zero Token is neither.
type Token struct {
	kind  tokenKind
	value float64
	op    Operator
}

// NumberToken creates a number token.
func NumberToken(v float64) Token {
	return Token{kind: kindNumber, value: v}
}

// OperatorToken creates an operator token.
func OperatorToken(op Operator) Token {
	return Token{kind: kindOperator, op: op}
}

// IsNumber reports whether the token holds a number
func (t Token) IsNumber() bool { return t.kind == kindNumber }

// IsOperator reports whether the token holds an operator
func (t Token) IsOperator() bool { return t.kind == kindOperator }

// Value returns the numeric value; zero for operator tokens.
func (t Token) Value() float64 { return t.value }

// Operator returns the operator; zero for number tokens.
func (t Token) Operator() Operator { return t.op }

// String renders the token the way it would appear in an expression
func (t Token) String() string {
	switch t.kind {
	case kindNumber:
		return strconv.FormatFloat(t.value, 'g', -1, 64)
	case kindOperator:
		return t.op.String()
	}
	return "<invalid>"
}

// Infix is a token sequence in reading order.
type Infix []Token

// Postfix is a token sequence in reverse-Polish order.
type Postfix []Token

// String joins the tokens with spaces
func (p Infix) String() string { return joinTokens(p) }

// String joins the tokens with spaces
func (p Postfix) String() string { return joinTokens(p) }

func joinTokens(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

// DefaultDecimalSeparators are the characters accepted as a decimal point.
const DefaultDecimalSeparators = ".,"

// IsOperator reports whether token is exactly one of + - * /.
func IsOperator(token string) bool {
	if len(token) != 1 {
		return false
	}
	_, ok := precedence[Operator(token[0])]
	return ok
}

// IsNumber reports whether token is a numeral under the default separators.
func IsNumber(token string) bool {
	_, ok := parseNumeral(token, DefaultDecimalSeparators)
	return ok
}

// IsDigit reports whether ch is 0-9.
func IsDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

// IsDecimal reports whether ch is '.' or ','.
func IsDecimal(ch rune) bool {
	return strings.ContainsRune(DefaultDecimalSeparators, ch)
}

// parseNumeral accepts digits with at most one separator from seps and at
// least one digit, e.g. "12", "1,5", ".5", "5.".
func parseNumeral(token, seps string) (float64, bool) {
	if token == "" {
		return 0, false
	}
	var b strings.Builder
	digits, points := 0, 0
	for _, ch := range token {
		switch {
		case IsDigit(ch):
			digits++
			b.WriteRune(ch)
		case strings.ContainsRune(seps, ch):
			points++
			b.WriteByte('.')
		default:
			return 0, false
		}
	}
	if digits == 0 || points > 1 {
		return 0, false
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ParseNumber converts a user-entered number, allowing an optional leading
// sign and surrounding whitespace. Used for quiz answers.
func ParseNumber(s string) (float64, bool) {
	return parseSigned(s, DefaultDecimalSeparators)
}

func parseSigned(s, seps string) (float64, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	v, ok := parseNumeral(s, seps)
	if !ok {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}
