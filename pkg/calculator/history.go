package calculator

// History maps expression text to its last computed result. Keys are the
// exact strings submitted; "3+5" and "3 + 5" are different entries.
// History does no locking of its own.
type History struct {
	entries map[string]float64
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{entries: make(map[string]float64)}
}

// Add inserts or overwrites the entry for expression.
func (h *History) Add(expression string, result float64) {
	h.entries[expression] = result
}

// Get returns the stored result and whether it exists.
func (h *History) Get(expression string) (float64, bool) {
	v, ok := h.entries[expression]
	return v, ok
}

// Remove deletes the entry; missing keys are ignored.
func (h *History) Remove(expression string) {
	delete(h.entries, expression)
}

// List returns a copy of all entries in no particular order.
func (h *History) List() map[string]float64 {
	out := make(map[string]float64, len(h.entries))
	for k, v := range h.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of entries
func (h *History) Len() int {
	return len(h.entries)
}
