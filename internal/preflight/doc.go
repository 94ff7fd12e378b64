// Package preflight provides readiness checks for the paths and external
// services curator depends on.
//
// The CLI "curator check" command runs RunAll and renders each Result as a
// status line. Individual checks (CheckDirectoryAccess, CheckClassifier,
// CheckSource) are exported so callers can run them selectively.
package preflight
