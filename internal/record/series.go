package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Series is a book's position within a named series. Index is optional; a
// Series with no index sorts before any Series of the same name that has one.
type Series struct {
	Name  string
	Index *float64
}

// ParseSeries parses "name [num]" into a Series. If the trailing "[num]"
// is absent or num fails to parse as a float, the whole string becomes the
// series Name with no Index. This is the only way a Series is constructed
// from raw user input; there is no corresponding "append" operation.
func ParseSeries(s string) Series {
	open := strings.LastIndex(s, "[")
	if open == -1 || !strings.HasSuffix(s, "]") {
		return Series{Name: s}
	}
	numStr := s[open+1 : len(s)-1]
	idx, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return Series{Name: s}
	}
	name := strings.TrimRight(s[:open], " ")
	return Series{Name: name, Index: &idx}
}

// String renders the series as "{name}" or "{name} [{index}]".
func (s Series) String() string {
	if s.Index == nil {
		return s.Name
	}
	return fmt.Sprintf("%s [%s]", s.Name, formatIndex(*s.Index))
}

func formatIndex(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Compare orders series lexicographically by Name, then numerically by
// Index. NaN sorts equal to NaN; otherwise NaN sorts low. A missing Index
// sorts below a present Index for the same Name.
func (s Series) Compare(other Series) int {
	if c := strings.Compare(s.Name, other.Name); c != 0 {
		return c
	}
	return compareIndex(s.Index, other.Index)
}

func compareIndex(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	av, bv := *a, *b
	aNaN, bNaN := math.IsNaN(av), math.IsNaN(bv)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return -1
	case bNaN:
		return 1
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}
