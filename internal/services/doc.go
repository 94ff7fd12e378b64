// Package services defines shared utilities consumed by the pipeline stages
// and their external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, item IDs, and stage names for
//     logging and tracing.
//   - The error taxonomy (already running, filtered, resolve/download/classify
//     failures, run timeout) plus the Wrap helper that keeps stage context
//     while preserving the marker for errors.Is checks.
//
// Use these helpers when wiring new stage logic so failure bookkeeping and
// log shape stay uniform across the pipeline.
package services
