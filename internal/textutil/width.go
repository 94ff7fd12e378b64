package textutil

import (
	"strings"

	"golang.org/x/text/width"
)

const ellipsis = "…"

// RuneWidth returns the number of terminal columns r occupies.
func RuneWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

// Width returns the column width of s.
func Width(s string) int {
	total := 0
	for _, r := range s {
		total += RuneWidth(r)
	}
	return total
}

// Truncate shortens s to at most cols columns, ending with an ellipsis when
// anything was cut.
func Truncate(s string, cols int) string {
	if cols <= 0 {
		return ""
	}
	if Width(s) <= cols {
		return s
	}
	limit := cols - 1
	var b strings.Builder
	used := 0
	for _, r := range s {
		w := RuneWidth(r)
		if used+w > limit {
			break
		}
		b.WriteRune(r)
		used += w
	}
	return strings.TrimRight(b.String(), " ") + ellipsis
}
