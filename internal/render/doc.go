// Package render draws the ranked summary card.
//
// The card is a single JPEG: a header with the run label and date, then one
// row per ranked item with its cover thumbnail, wrapped title, tags and a
// score bar. Text is drawn with an OpenType face when one can be loaded and
// falls back to the built-in bitmap face otherwise.
package render
