package quiz

import (
	"errors"
	"fmt"
	"strings"
)

// Difficulty selects a question bank
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
)

// ErrUnknownDifficulty is returned by ParseDifficulty
var ErrUnknownDifficulty = errors.New("unknown difficulty")

var banks = map[Difficulty][]string{
	Easy: {
		"2 + 3",
		"9 - 4",
		"6 * 7",
		"8 / 2",
		"10 + 15",
		"12 - 20",
		"3 * 3",
		"100 / 4",
		"7 + 8",
		"5 * 6",
	},
	// Every answer here is exactly representable, so typing the printed
	// result always matches.
	Medium: {
		"3 + 5 * 2",
		"20 / 4 - 3",
		"7 * 8 - 6",
		"10 - 3 - 2",
		"18 / 3 / 2",
		"2,5 * 4",
		"1.5 + 2.5 * 2",
		"9 / 2",
		"100 - 7 * 7",
		"6 + 12 / 4 * 3",
	},
}

// ParseDifficulty accepts "easy" or "medium" in any case.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := banks[d]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
	}
	return d, nil
}

// Difficulties lists the known difficulties in display order
func Difficulties() []Difficulty {
	return []Difficulty{Easy, Medium}
}

// Questions returns a copy of the bank for d.
func Questions(d Difficulty) []string {
	bank := banks[d]
	out := make([]string, len(bank))
	copy(out, bank)
	return out
}
