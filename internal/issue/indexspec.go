package issue

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidIndexSpec is returned by ValidateIndexSpec for malformed input.
var ErrInvalidIndexSpec = errors.New("invalid index specification")

// IndexSpec is a parsed "N" or "M,N" message selection, stored as the
// inclusive bounds Start..End. A single index has Start == End.
type IndexSpec struct {
	Start         int
	End           int
	IsSingleIndex bool
}

// Contains reports whether index is selected.
func (s IndexSpec) Contains(index int) bool {
	return index >= s.Start && index <= s.End
}

// Indices lists the selected indices that exist in a conversation of count
// messages.
func (s IndexSpec) Indices(count int) []int {
	end := min(s.End, count-1)
	if s.Start > end {
		return []int{}
	}
	indices := make([]int, 0, end-s.Start+1)
	for i := s.Start; i <= end; i++ {
		indices = append(indices, i)
	}
	return indices
}

// ParseIndexSpec parses a single index ("3") or an inclusive range ("1,3").
func ParseIndexSpec(spec string) (IndexSpec, bool) {
	parts := strings.Split(spec, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	switch len(parts) {
	case 1:
		index, ok := parseIndex(parts[0])
		if !ok {
			return IndexSpec{}, false
		}
		return IndexSpec{Start: index, End: index, IsSingleIndex: true}, true
	case 2:
		start, ok := parseIndex(parts[0])
		if !ok {
			return IndexSpec{}, false
		}
		end, ok := parseIndex(parts[1])
		if !ok || end < start {
			return IndexSpec{}, false
		}
		return IndexSpec{Start: start, End: end}, true
	default:
		return IndexSpec{}, false
	}
}

// ValidateIndexSpec is ParseIndexSpec with an error for the invalid case.
func ValidateIndexSpec(spec string) (IndexSpec, error) {
	parsed, ok := ParseIndexSpec(spec)
	if !ok {
		return IndexSpec{}, fmt.Errorf("%w: %q (expected N or M,N)", ErrInvalidIndexSpec, spec)
	}
	return parsed, nil
}

// parseIndex accepts only plain decimal digits.
func parseIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
