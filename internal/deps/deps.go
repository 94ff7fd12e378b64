// Package deps resolves the external binaries curator can delegate to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external command and whether curator can run
// without it.
type Requirement struct {
	Name     string
	Command  string
	Optional bool
}

// Status is the lookup result for one Requirement.
type Status struct {
	Requirement
	Available bool
	Path      string
	Detail    string
}

// Lookup resolves a single requirement on PATH. Absolute or relative paths
// are checked as given.
func Lookup(req Requirement) Status {
	req.Command = strings.TrimSpace(req.Command)
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(req.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return status
	}
	status.Available = true
	status.Path = path
	return status
}

// CheckBinaries looks up every requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, Lookup(req))
	}
	return results
}
