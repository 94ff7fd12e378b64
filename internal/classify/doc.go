// Package classify scores a directory of gallery images.
//
// Classifier is the only surface the pipeline sees. Select probes the
// configured backends in order (a remote inference endpoint, then a local
// command) and returns the first one that answers; when none does, every
// Analyze call fails with services.ErrBackendUnavailable so items fail
// without taking the process down.
//
// Analysis is cooperative: callers hand in a CancelToken and backends check
// it between images, aborting any in-flight request once it is signalled.
package classify
