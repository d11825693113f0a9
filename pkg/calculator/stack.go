package calculator

// stack is a slice-backed LIFO; push and pop are the only operations.
type stack[T any] struct {
	items []T
}

func newStack[T any](capacity int) *stack[T] {
	return &stack[T]{items: make([]T, 0, capacity)}
}

func (s *stack[T]) push(v T) {
	s.items = append(s.items, v)
}

// pop returns false when the stack is empty
func (s *stack[T]) pop() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	last := len(s.items) - 1
	v := s.items[last]
	s.items = s.items[:last]
	return v, true
}
