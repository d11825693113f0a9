package calculator

import (
	"errors"

	"github.com/antibyte/retrocalc/pkg/configuration"
	"github.com/antibyte/retrocalc/pkg/logger"
)

// Calculator runs the full pipeline and records successful results.
// A Calculator must not be shared between goroutines without external
// synchronization.
type Calculator struct {
	parser    *Parser
	evaluator *Evaluator
	history   *History
	maxLength int
}

// Option configures a Calculator
type Option func(*Calculator)

// WithDecimalSeparators sets the characters accepted as a decimal point.
func WithDecimalSeparators(seps string) Option {
	return func(c *Calculator) { c.parser = NewParser(seps) }
}

// WithDivisionMode sets the division-by-zero policy.
func WithDivisionMode(mode DivisionMode) Option {
	return func(c *Calculator) { c.evaluator = NewEvaluator(mode) }
}

// WithMaxLength rejects expressions longer than n bytes; 0 disables the check.
func WithMaxLength(n int) Option {
	return func(c *Calculator) { c.maxLength = n }
}

// WithHistory installs an existing history, e.g. one restored from storage.
func WithHistory(h *History) Option {
	return func(c *Calculator) {
		if h != nil {
			c.history = h
		}
	}
}

// New creates a Calculator with an empty history.
func New(opts ...Option) *Calculator {
	c := &Calculator{
		parser:    NewParser(DefaultDecimalSeparators),
		evaluator: NewEvaluator(DivisionIEEE),
		history:   NewHistory(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a Calculator from the [Calculator] section.
func NewFromConfig(opts ...Option) *Calculator {
	base := []Option{
		WithDecimalSeparators(configuration.GetString("Calculator", "decimal_separators", DefaultDecimalSeparators)),
		WithDivisionMode(ParseDivisionMode(configuration.GetString("Calculator", "division_mode", "ieee"))),
		WithMaxLength(configuration.GetInt("Calculator", "max_expression_length", 256)),
	}
	return New(append(base, opts...)...)
}

// Calculate parses, converts and evaluates expression. On success the
// result is added to the history under the exact expression text.
func (c *Calculator) Calculate(expression string) (float64, error) {
	if c.maxLength > 0 && len(expression) > c.maxLength {
		logger.CalcWarn("rejected expression of %d bytes (limit %d)", len(expression), c.maxLength)
		return 0, c.fail(expression, newError(ErrExpressionTooLong, "", -1))
	}

	infix, err := c.ParseExpression(expression)
	if err != nil {
		return 0, c.fail(expression, err)
	}
	postfix, err := c.ConvertExpression(infix)
	if err != nil {
		return 0, c.fail(expression, err)
	}
	result, err := c.EvaluateExpression(postfix)
	if err != nil {
		return 0, c.fail(expression, err)
	}

	c.AddToHistory(expression, result)
	logger.CalcDebug("%q = %v", expression, result)
	return result, nil
}

func (c *Calculator) fail(expression string, err error) error {
	var ee *ExpressionError
	if errors.As(err, &ee) {
		ee.Expression = expression
	}
	logger.CalcDebug("%q rejected: %v", expression, err)
	return err
}

// ParseExpression tokenizes and validates expression.
func (c *Calculator) ParseExpression(expression string) (Infix, error) {
	return c.parser.ValidateAndParse(expression)
}

// ConvertExpression turns infix tokens into postfix.
func (c *Calculator) ConvertExpression(infix Infix) (Postfix, error) {
	return ToPostfix(infix)
}

// EvaluateExpression reduces postfix tokens to a number.
func (c *Calculator) EvaluateExpression(postfix Postfix) (float64, error) {
	return c.evaluator.Evaluate(postfix)
}

// AddToHistory records a result under expression.
func (c *Calculator) AddToHistory(expression string, result float64) {
	c.history.Add(expression, result)
}

// RemoveFromHistory deletes expression from the history.
func (c *Calculator) RemoveFromHistory(expression string) {
	c.history.Remove(expression)
}

// GetHistory returns a snapshot of all recorded results.
func (c *Calculator) GetHistory() map[string]float64 {
	return c.history.List()
}

// History exposes the underlying history for direct Get/Remove/List calls.
func (c *Calculator) History() *History {
	return c.history
}

// ParseAnswer converts a user-entered number using this calculator's
// decimal separators. A leading sign is allowed.
func (c *Calculator) ParseAnswer(s string) (float64, bool) {
	return c.parser.parseSigned(s)
}
