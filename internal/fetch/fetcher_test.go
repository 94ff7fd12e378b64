package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"curator/internal/logging"
	"curator/internal/transport"
)

func newFetcher(t *testing.T, gate *Gate) *Fetcher {
	t.Helper()
	client, err := transport.New(transport.Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	return NewFetcher(client, gate, Options{Attempts: 3, RetryPause: 5 * time.Millisecond}, logging.NewNop())
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "image-bytes")
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "item")
	report, err := newFetcher(t, NewGate(4)).Fetch(context.Background(), []string{srv.URL + "/galleries/1/1.jpg"}, dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if report.Fetched != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
	data, err := os.ReadFile(filepath.Join(dir, "1.jpg"))
	if err != nil || string(data) != "image-bytes" {
		t.Fatalf("unexpected file content %q err=%v", data, err)
	}
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	report, err := newFetcher(t, NewGate(4)).Fetch(context.Background(), []string{srv.URL + "/2.png"}, t.TempDir())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if report.NotFound != 1 || report.Fetched != 0 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single attempt for 404, got %d", hits.Load())
	}
}

func TestFetchToleratesPartialLoss(t *testing.T) {
	var badHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/bad.jpg") {
			badHits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	dir := t.TempDir()
	urls := []string{srv.URL + "/1.jpg", srv.URL + "/bad.jpg", srv.URL + "/3.jpg"}
	report, err := newFetcher(t, NewGate(4)).Fetch(context.Background(), urls, dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if report.Requested != 3 || report.Fetched != 2 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if badHits.Load() != 3 {
		t.Fatalf("expected exhausted retries on failing asset, got %d", badHits.Load())
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".part") {
			t.Fatalf("partial file left behind: %s", e.Name())
		}
	}
}

func TestGateBoundsTransfersAcrossCalls(t *testing.T) {
	const limit = 2
	var (
		active  atomic.Int32
		maxSeen atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := active.Add(1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		active.Add(-1)
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	gate := NewGate(limit)
	fetcher := newFetcher(t, gate)
	root := t.TempDir()

	var wg sync.WaitGroup
	for item := 0; item < 3; item++ {
		urls := make([]string, 5)
		for i := range urls {
			urls[i] = fmt.Sprintf("%s/%d/%d.jpg", srv.URL, item, i+1)
		}
		wg.Add(1)
		go func(item int, urls []string) {
			defer wg.Done()
			report, err := fetcher.Fetch(context.Background(), urls, filepath.Join(root, fmt.Sprint(item)))
			if err != nil || report.Fetched != len(urls) {
				t.Errorf("item %d: report=%+v err=%v", item, report, err)
			}
		}(item, urls)
	}
	wg.Wait()

	if gate.Peak() > limit {
		t.Fatalf("gate peak %d exceeded limit %d", gate.Peak(), limit)
	}
	if maxSeen.Load() > limit {
		t.Fatalf("server observed %d concurrent transfers, limit %d", maxSeen.Load(), limit)
	}
	if gate.InFlight() != 0 {
		t.Fatalf("expected no transfers in flight, got %d", gate.InFlight())
	}
}

func TestFetchReturnsContextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := newFetcher(t, NewGate(1)).Fetch(ctx, []string{srv.URL + "/1.jpg", srv.URL + "/2.jpg"}, t.TempDir())
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestAssetName(t *testing.T) {
	cases := map[string]string{
		"https://i.example/galleries/5/12.webp": "12.webp",
		"https://i.example/":                    "3",
		"::bad":                                 "3",
	}
	for raw, want := range cases {
		if got := assetName(raw, 3); got != want {
			t.Fatalf("assetName(%q) = %q want %q", raw, got, want)
		}
	}
}
