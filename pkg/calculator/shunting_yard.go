package calculator

// ToPostfix converts an infix sequence to postfix with the shunting-yard
// algorithm. Operators of equal precedence are left-associative.
func ToPostfix(infix Infix) (Postfix, error) {
	operators := newStack[Operator](len(infix) / 2)
	output := make(Postfix, 0, len(infix))

	for _, tok := range infix {
		switch {
		case tok.IsNumber():
			output = append(output, tok)
		case tok.IsOperator():
			rank, err := tok.Operator().Precedence()
			if err != nil {
				return nil, err
			}
			for {
				top, ok := operators.pop()
				if !ok {
					break
				}
				topRank, err := top.Precedence()
				if err != nil {
					return nil, err
				}
				if topRank < rank {
					operators.push(top)
					break
				}
				output = append(output, OperatorToken(top))
			}
			operators.push(tok.Operator())
		default:
			return nil, newError(ErrUnknownOperator, tok.String(), -1)
		}
	}

	for {
		op, ok := operators.pop()
		if !ok {
			break
		}
		output = append(output, OperatorToken(op))
	}

	return output, nil
}
