// Package gallery defines the item model that flows through the curator
// pipeline: listing entries, resolved manifests, and the lifecycle states an
// item passes through from listing to classification.
//
// Item.Advance enforces the lifecycle table so stage code cannot skip or
// revisit states; score and stats are only ever written together through
// SetResult.
package gallery
