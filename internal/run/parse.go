package run

import (
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// MaxReps bounds a single set's rep count.
const MaxReps = 9999

// ParseReps keeps only the digits of free text and returns them as a rep
// count. Full-width digits from CJK keyboards count as digits. Text without
// digits is 0; values above MaxReps saturate.
func ParseReps(text string) int {
	var b strings.Builder
	for _, r := range width.Narrow.String(text) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if digits == "" {
		return 0
	}
	if len(digits) > len(strconv.Itoa(MaxReps)) {
		return MaxReps
	}
	n, _ := strconv.Atoi(digits)
	return min(n, MaxReps)
}

// ParseLoad reads a load in kilograms. Both "," and "." are accepted as the
// decimal separator. Text without digits means no load.
func ParseLoad(text string) *float64 {
	var b strings.Builder
	seenSep := false
	for _, r := range width.Narrow.String(text) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case (r == ',' || r == '.') && !seenSep:
			seenSep = true
			b.WriteRune('.')
		}
	}
	s := b.String()
	if s == "" || s == "." {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
