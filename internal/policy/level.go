package policy

import (
	"fmt"
	"strings"
)

// Level is a governance level. Ordered LOW < MEDIUM < HIGH.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Levels lists all known levels in ascending order.
var Levels = []Level{LevelLow, LevelMedium, LevelHigh}

// Rank returns the ordinal of l (1..3), or 0 for an unknown level.
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	default:
		return 0
	}
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return l.Rank() > 0
}

// Below reports whether l is strictly weaker than other.
func (l Level) Below(other Level) bool {
	return l.Rank() < other.Rank()
}

func (l Level) String() string {
	return string(l)
}

// ParseLevel parses a level case-insensitively. Empty input returns "" with no error.
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	l := Level(strings.ToUpper(s))
	if !l.Valid() {
		return "", fmt.Errorf("unknown governance level %q: must be one of %v", s, Levels)
	}
	return l, nil
}

// maxLevel returns the stronger of a and b.
func maxLevel(a, b Level) Level {
	if a.Rank() >= b.Rank() {
		return a
	}
	return b
}
