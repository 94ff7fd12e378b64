package textutil

import (
	"strings"

	"golang.org/x/text/cases"
)

// FoldLabel trims and case-folds a label so comparisons ignore case in any
// script.
func FoldLabel(value string) string {
	return cases.Fold().String(strings.TrimSpace(value))
}
