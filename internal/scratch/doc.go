// Package scratch owns curator's temporary storage.
//
// A Root is acquired once per process: it takes an exclusive file lock inside
// the scratch directory and clears anything a previous process left behind.
// Each pipeline run gets a RunDir, and each item being processed gets its own
// Dir beneath it. Every level has an idempotent Release so callers can defer
// cleanup on all exit paths.
package scratch
