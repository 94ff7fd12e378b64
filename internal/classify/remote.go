package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// remoteBackend posts each image to an HTTP inference service.
type remoteBackend struct {
	endpoint string
	device   string
	client   *http.Client
}

func newRemoteBackend(settings Settings) *remoteBackend {
	timeout := settings.RequestTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &remoteBackend{
		endpoint: settings.Endpoint,
		device:   settings.Device,
		client:   &http.Client{Timeout: timeout},
	}
}

// probe checks GET <endpoint>/health.
func (r *remoteBackend) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %s", resp.Status)
	}
	return nil
}

func (r *remoteBackend) judge(ctx context.Context, path string) (Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Response{}, err
	}
	target := r.endpoint + "/classify"
	if r.device != "" {
		target += "?device=" + url.QueryEscape(r.device)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return Response{}, fmt.Errorf("build classify request: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Filename", filepath.Base(path))

	resp, err := r.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("classify request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Response{}, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode classifier response: %w", err)
	}
	return out, nil
}
