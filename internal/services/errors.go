package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyRunning     = errors.New("run already in progress")
	ErrRunTimeout         = errors.New("run timed out")
	ErrFiltered           = errors.New("filtered by policy")
	ErrResolveFailed      = errors.New("manifest resolve failed")
	ErrDownloadFailed     = errors.New("download failed")
	ErrClassifyFailed     = errors.New("classify failed")
	ErrClassifyTimeout    = errors.New("classify timed out")
	ErrBackendUnavailable = errors.New("classifier backend unavailable")
	ErrNotFound           = errors.New("not found")
	ErrTransient          = errors.New("transient failure")
	ErrConfiguration      = errors.New("configuration error")
	ErrValidation         = errors.New("validation error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Reason maps a per-item error to the short reason recorded in run summaries.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFiltered):
		return "filtered"
	case errors.Is(err, ErrClassifyTimeout):
		return "classify_timeout"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, ErrClassifyFailed):
		return "classify_failed"
	case errors.Is(err, ErrResolveFailed):
		return "resolve_failed"
	case errors.Is(err, ErrDownloadFailed):
		return "download_failed"
	case errors.Is(err, ErrRunTimeout):
		return "run_timeout"
	default:
		return "failed"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
