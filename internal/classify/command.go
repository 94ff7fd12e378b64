package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// commandBackend runs an external scorer once per image. The image path is
// appended to the configured args and the scorer prints a Response as JSON.
type commandBackend struct {
	path   string
	args   []string
	device string
}

func (c *commandBackend) judge(ctx context.Context, path string) (Response, error) {
	args := append([]string(nil), c.args...)
	if c.device != "" {
		args = append(args, "--device", c.device)
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, c.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return Response{}, fmt.Errorf("run %s: %w: %s", c.path, err, detail)
		}
		return Response{}, fmt.Errorf("run %s: %w", c.path, err)
	}
	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(out), &resp); err != nil {
		return Response{}, fmt.Errorf("decode %s output: %w", c.path, err)
	}
	return resp, nil
}
