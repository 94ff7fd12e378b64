// Package fetch downloads gallery assets into a local directory.
//
// All Fetcher calls in a process share one Gate, so the number of in-flight
// transfers is bounded across every item being downloaded, not per item. Each
// asset is retried a few times with a short pause; a 404 fails that asset at
// once. Asset failures are counted in the Report and never abort siblings.
package fetch
