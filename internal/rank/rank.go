// Package rank orders classified items for the summary card.
package rank

import (
	"sort"

	"curator/internal/gallery"
)

// Top returns the n highest-scoring items, highest first. Items with equal
// scores keep their input order. n <= 0 keeps every item. The input slice is
// not modified; an empty input yields nil.
func Top(items []*gallery.Item, n int) []*gallery.Item {
	if len(items) == 0 {
		return nil
	}
	ranked := make([]*gallery.Item, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score() > ranked[j].Score()
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
