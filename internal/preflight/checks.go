package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"curator/internal/classify"
	"curator/internal/config"
	"curator/internal/deps"
	"curator/internal/transport"
)

const sourceCheckTimeout = 10 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckClassifier probes the configured classifier backends in selection
// order and reports which one a run would use.
func CheckClassifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) Result {
	const name = "Classifier"
	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	_, backend := classify.Select(ctx, classify.SettingsFromConfig(cfg), logger)
	switch backend {
	case classify.BackendRemote:
		return Result{Name: name, Passed: true, Detail: "remote endpoint " + cfg.Classifier.Endpoint}
	case classify.BackendCommand:
		return Result{Name: name, Passed: true, Detail: "command " + cfg.Classifier.Command}
	default:
		return Result{Name: name, Detail: "no backend available (items will fail classification)"}
	}
}

// CheckSource verifies that the listing host answers through the configured
// proxy and headers.
func CheckSource(ctx context.Context, cfg *config.Config) Result {
	const name = "Source"
	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.Source.BaseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "source.base_url not configured"}
	}
	client, err := transport.ForSource(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("client setup failed (%v)", err)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, sourceCheckTimeout)
	defer cancel()

	resp, err := client.Get(checkCtx, base+"/")
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer transport.Drain(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", base)}
	case resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "access denied (403); check proxy_url and user_agent"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
}

// CheckNotifications reports whether run notifications are configured.
func CheckNotifications(cfg *config.Config) Result {
	const name = "Notifications"
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return Result{Name: name, Passed: true, Optional: true, Detail: "Disabled"}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: "ntfy " + cfg.Notifications.NtfyTopic}
}

// CheckSystemDeps evaluates the external binaries the config delegates to.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:     "Classifier command",
			Command:  cfg.Classifier.Command,
			Optional: strings.TrimSpace(cfg.Classifier.Endpoint) != "",
		},
	}
	return deps.CheckBinaries(requirements)
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out (source unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timed out (source unreachable)"
	}
	return err.Error()
}
