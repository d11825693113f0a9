package calculator

// Evaluator reduces a postfix sequence to a single number.
type Evaluator struct {
	mode DivisionMode
}

// NewEvaluator creates an evaluator with the given division-by-zero policy
func NewEvaluator(mode DivisionMode) *Evaluator {
	return &Evaluator{mode: mode}
}

// Evaluate runs the stack machine. The operand pushed last is the right-hand
// side of each operator.
func (e *Evaluator) Evaluate(postfix Postfix) (float64, error) {
	operands := newStack[float64](len(postfix)/2 + 1)

	for i, tok := range postfix {
		switch {
		case tok.IsNumber():
			operands.push(tok.Value())
		case tok.IsOperator():
			right, ok := operands.pop()
			if !ok {
				return 0, newError(ErrMalformedExpression, tok.String(), i)
			}
			left, ok := operands.pop()
			if !ok {
				return 0, newError(ErrMalformedExpression, tok.String(), i)
			}
			result, err := tok.Operator().Apply(left, right, e.mode)
			if err != nil {
				if ee, ok := err.(*ExpressionError); ok {
					ee.Position = i
				}
				return 0, err
			}
			operands.push(result)
		default:
			return 0, newError(ErrMalformedExpression, tok.String(), i)
		}
	}

	result, ok := operands.pop()
	if !ok {
		return 0, newError(ErrEmptyResult, "", -1)
	}
	if _, extra := operands.pop(); extra {
		return 0, newError(ErrMalformedExpression, "", -1)
	}
	return result, nil
}
