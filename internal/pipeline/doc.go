// Package pipeline coordinates one curator run.
//
// A Coordinator lists a window, fans items out to a fixed pool of download
// workers, feeds downloaded items to a single classify worker, then ranks the
// classified items and renders the summary card. Only one run may be active
// at a time; a second call is rejected with services.ErrAlreadyRunning rather
// than queued.
//
// Every item is tracked in a Ledger that keeps it in exactly one of five sets
// (pending download, pending classify, succeeded, filtered, failed). Per-item
// failures are recorded there and never escape the coordinator; only the
// whole-run timeout and resource acquisition failures are returned.
//
// Scratch storage is scoped: each run owns a run directory under the scratch
// root and each item owns one directory beneath it. Both are released on every
// exit path, including run timeouts and recovered panics.
package pipeline
