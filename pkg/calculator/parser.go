package calculator

import (
	"strings"
	"unicode"

	"github.com/antibyte/retrocalc/pkg/logger"
)

// Parser tokenizes and validates infix expressions.
type Parser struct {
	separators string
}

// NewParser creates a parser accepting the given decimal separators.
// An empty string selects DefaultDecimalSeparators.
func NewParser(separators string) *Parser {
	if separators == "" {
		separators = DefaultDecimalSeparators
	}
	return &Parser{separators: separators}
}

// isDecimal checks against the configured separator set
func (p *Parser) isDecimal(ch rune) bool {
	return strings.ContainsRune(p.separators, ch)
}

func (p *Parser) parseSigned(s string) (float64, bool) {
	return parseSigned(s, p.separators)
}

// charClass groups characters for the scanner
type charClass int

const (
	classSpace charClass = iota
	classNumeral
	classOperator
	classOther
)

func (p *Parser) classify(ch rune) charClass {
	switch {
	case unicode.IsSpace(ch):
		return classSpace
	case IsDigit(ch) || p.isDecimal(ch):
		return classNumeral
	case IsOperator(string(ch)):
		return classOperator
	}
	return classOther
}

// SplitTokens scans the expression into raw tokens. Numerals are kept
// together, operators stand alone, whitespace is dropped, and runs of any
// other characters come through as a single opaque token.
func (p *Parser) SplitTokens(expression string) []string {
	tokens := make([]string, 0, len(expression)/2+1)
	var buffer strings.Builder
	pending := classSpace

	flush := func() {
		if buffer.Len() > 0 {
			tokens = append(tokens, buffer.String())
			buffer.Reset()
		}
	}

	for _, ch := range expression {
		class := p.classify(ch)
		switch class {
		case classSpace:
			flush()
		case classOperator:
			flush()
			tokens = append(tokens, string(ch))
		default:
			if class != pending {
				flush()
			}
			buffer.WriteRune(ch)
		}
		pending = class
	}
	flush()

	return tokens
}

// ValidateAndParse tokenizes the expression, converts every raw token and
// checks the token order.
func (p *Parser) ValidateAndParse(expression string) (Infix, error) {
	raw := p.SplitTokens(expression)
	tokens, err := p.validateTokens(raw)
	if err != nil {
		return nil, err
	}
	if err := validateFormat(tokens, raw); err != nil {
		return nil, err
	}
	logger.CalcDebug("parsed %q into %d tokens", expression, len(tokens))
	return tokens, nil
}

// validateTokens converts raw strings into typed tokens
func (p *Parser) validateTokens(raw []string) (Infix, error) {
	tokens := make(Infix, 0, len(raw))
	for i, s := range raw {
		if v, ok := parseNumeral(s, p.separators); ok {
			tokens = append(tokens, NumberToken(v))
		} else if IsOperator(s) {
			tokens = append(tokens, OperatorToken(Operator(s[0])))
		} else {
			return nil, newError(ErrInvalidToken, s, i)
		}
	}
	return tokens, nil
}

// validateFormat runs the boundary checks and then the sequence check.
// An empty sequence passes; the evaluator reports it.
func validateFormat(tokens Infix, raw []string) error {
	if len(tokens) == 0 {
		return nil
	}
	if tokens[0].IsOperator() {
		return newError(ErrLeadingOperator, raw[0], 0)
	}
	last := len(tokens) - 1
	if tokens[last].IsOperator() {
		return newError(ErrTrailingOperator, raw[last], last)
	}
	for i := 1; i < len(tokens); i++ {
		prev, cur := tokens[i-1], tokens[i]
		if prev.IsNumber() && cur.IsNumber() {
			return newError(ErrAdjacentNumbers, raw[i], i)
		}
		if prev.IsOperator() && cur.IsOperator() {
			return newError(ErrAdjacentOperators, raw[i], i)
		}
	}
	return nil
}
