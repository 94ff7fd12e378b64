// Package textutil provides small text helpers shared across curator.
//
// The primary use cases are:
//   - Sanitizing item identifiers for safe filesystem use
//   - Case-folding classifier labels before keyword matching
//   - Measuring and truncating titles by terminal column width, where
//     east-asian wide runes occupy two columns
package textutil
