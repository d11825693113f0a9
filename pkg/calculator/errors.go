// Package calculator evaluates simple infix arithmetic expressions.
package calculator

import (
	"errors"
	"fmt"
)

// Error definitions for the evaluation pipeline.
var (
	ErrInvalidToken        = errors.New("invalid token in expression")
	ErrLeadingOperator     = errors.New("expression cannot start with an operator")
	ErrTrailingOperator    = errors.New("expression cannot end with an operator")
	ErrAdjacentNumbers     = errors.New("two numbers in a row are not allowed")
	ErrAdjacentOperators   = errors.New("two operators in a row are not allowed")
	ErrUnknownOperator     = errors.New("unknown operator")
	ErrMalformedExpression = errors.New("stack did not resolve to a single result")
	ErrDivisionByZero      = errors.New("division by zero")
	ErrExpressionTooLong   = errors.New("expression too long")

	// ErrEmptyResult is a special case of ErrMalformedExpression:
	// errors.Is matches both.
	ErrEmptyResult = fmt.Errorf("%w: expression is empty", ErrMalformedExpression)
)

// Error categories
const (
	// ErrCategorySyntax marks failures of the tokenizer and validator.
	ErrCategorySyntax = "SYNTAX ERROR"
	// ErrCategoryEvaluation marks failures of the converter and evaluator.
	ErrCategoryEvaluation = "EVALUATION ERROR"
)

// ExpressionError is the structured error returned by every pipeline stage.
type ExpressionError struct {
	Kind       error  // one of the Err* sentinels above
	Token      string // offending raw token, if any
	Position   int    // index of the offending token, -1 if not applicable
	Expression string // original expression, filled in by Calculator
}

// Error implements the error interface
func (e *ExpressionError) Error() string {
	msg := e.Category() + ": " + e.Kind.Error()
	if e.Token != "" {
		msg += fmt.Sprintf(" (%q", e.Token)
		if e.Position >= 0 {
			msg += fmt.Sprintf(" at token %d", e.Position)
		}
		msg += ")"
	}
	return msg
}

// Unwrap returns the sentinel so callers can use errors.Is.
func (e *ExpressionError) Unwrap() error {
	return e.Kind
}

// Category classifies the error for display.
func (e *ExpressionError) Category() string {
	switch e.Kind {
	case ErrInvalidToken, ErrLeadingOperator, ErrTrailingOperator,
		ErrAdjacentNumbers, ErrAdjacentOperators, ErrExpressionTooLong:
		return ErrCategorySyntax
	default:
		return ErrCategoryEvaluation
	}
}

func newError(kind error, token string, pos int) *ExpressionError {
	return &ExpressionError{Kind: kind, Token: token, Position: pos}
}
