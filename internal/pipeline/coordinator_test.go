package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"curator/internal/classify"
	"curator/internal/fetch"
	"curator/internal/gallery"
	"curator/internal/logging"
	"curator/internal/scratch"
	"curator/internal/services"
	"curator/internal/source"
	"curator/internal/testsupport"
)

type stubLister struct {
	entries []gallery.Entry
	err     error
	entered chan struct{}
	release chan struct{}
}

func (s *stubLister) List(ctx context.Context, _ source.Window) ([]gallery.Entry, error) {
	if s.entered != nil {
		close(s.entered)
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.entries, s.err
}

type stubResolver struct {
	mu        sync.Mutex
	calls     map[string]int
	minAssets []int
	outcome   func(id string, call int) (gallery.Manifest, error)
}

func (s *stubResolver) Resolve(_ context.Context, id string, minAssets int) (gallery.Manifest, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[id]++
	call := s.calls[id]
	s.minAssets = append(s.minAssets, minAssets)
	s.mu.Unlock()
	if s.outcome != nil {
		return s.outcome(id, call)
	}
	return manifestFor(id), nil
}

func (s *stubResolver) Calls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func manifestFor(id string) gallery.Manifest {
	return gallery.Manifest{
		AssetURLs: []string{"http://assets.test/" + id + "/1.jpg", "http://assets.test/" + id + "/2.jpg"},
		Title:     "Resolved " + id,
		Tags:      []string{"tag-" + id},
	}
}

type stubFetcher struct {
	image []byte
}

func (s *stubFetcher) Fetch(_ context.Context, urls []string, dir string) (fetch.Report, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fetch.Report{}, err
	}
	for i := range urls {
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("%d.jpg", i+1)), s.image, 0o644); err != nil {
			return fetch.Report{}, err
		}
	}
	return fetch.Report{Requested: len(urls), Fetched: len(urls)}, nil
}

type stubClassifier struct {
	scores map[string]float64
	errs   map[string]error
	// stall makes Analyze sleep without watching its token.
	stall map[string]time.Duration
}

func (s *stubClassifier) Analyze(_ *classify.CancelToken, dir string) (classify.Result, error) {
	id, _, _ := strings.Cut(filepath.Base(dir), "-")
	if d, ok := s.stall[id]; ok {
		time.Sleep(d)
	}
	if err := s.errs[id]; err != nil {
		return classify.Result{}, err
	}
	score := s.scores[id]
	return classify.Result{Score: score, Stats: gallery.Stats{Total: 10, Flagged: int(score / 10)}}, nil
}

type stubRenderer struct {
	mu       sync.Mutex
	ids      []string
	covers   []bool
	rendered int
}

func (s *stubRenderer) Render(items []*gallery.Item, outputPath string) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rendered++
	s.ids = s.ids[:0]
	s.covers = s.covers[:0]
	for _, item := range items {
		s.ids = append(s.ids, item.ID)
		_, err := os.Stat(item.CoverPath)
		s.covers = append(s.covers, item.CoverPath != "" && err == nil)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", err
	}
	return outputPath, os.WriteFile(outputPath, []byte("card"), 0o644)
}

type harness struct {
	coordinator *Coordinator
	root        *scratch.Root
	lister      *stubLister
	resolver    *stubResolver
	classifier  *stubClassifier
	renderer    *stubRenderer
	outputDir   string
}

func newHarness(t *testing.T, entries []gallery.Entry, tweak func(*Options)) *harness {
	t.Helper()
	root, err := scratch.Acquire(filepath.Join(t.TempDir(), "scratch"), logging.NewNop())
	if err != nil {
		t.Fatalf("scratch.Acquire: %v", err)
	}
	t.Cleanup(func() { _ = root.Close() })

	h := &harness{
		root:       root,
		lister:     &stubLister{entries: entries},
		resolver:   &stubResolver{},
		classifier: &stubClassifier{scores: map[string]float64{}, errs: map[string]error{}, stall: map[string]time.Duration{}},
		renderer:   &stubRenderer{},
		outputDir:  t.TempDir(),
	}
	opts := Options{
		DownloadWorkers: 3,
		TotalTimeout:    10 * time.Second,
		ClassifyTimeout: 2 * time.Second,
		CancelGrace:     50 * time.Millisecond,
		ResolveAttempts: 3,
		ResolveBackoff:  time.Millisecond,
		TopN:            10,
		MinAssets:       0,
		OutputDir:       h.outputDir,
	}
	if tweak != nil {
		tweak(&opts)
	}
	coordinator, err := New(Dependencies{
		Lister:     h.lister,
		Resolver:   h.resolver,
		Fetcher:    &stubFetcher{image: testsupport.JPEGBytes(t)},
		Classifier: h.classifier,
		Renderer:   h.renderer,
		Scratch:    root,
	}, opts, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.coordinator = coordinator
	return h
}

func entries(ids ...string) []gallery.Entry {
	out := make([]gallery.Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, gallery.Entry{ID: id, Title: "Listed " + id})
	}
	return out
}

func assertScratchEmpty(t *testing.T, root *scratch.Root) {
	t.Helper()
	names, err := root.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected scratch root to be empty, found %v", names)
	}
}

func TestRunRanksClassifiedItemsByScore(t *testing.T) {
	h := newHarness(t, entries("1", "2", "3"), nil)
	h.classifier.scores = map[string]float64{"1": 80, "2": 40, "3": 95}

	report, err := h.coordinator.Run(context.Background(), Request{Window: source.WindowToday})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcome != OutcomeRendered || report.ArtifactPath == "" {
		t.Fatalf("expected rendered artifact, got %+v", report)
	}
	if _, err := os.Stat(report.ArtifactPath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(report.ArtifactPath), "ranking_today_") {
		t.Fatalf("unexpected artifact name %q", report.ArtifactPath)
	}

	got := make([]string, 0, len(report.Ranked))
	for _, item := range report.Ranked {
		got = append(got, item.ID)
	}
	if strings.Join(got, ",") != "3,1,2" {
		t.Fatalf("ranked = %v, want [3 1 2]", got)
	}
	if strings.Join(h.renderer.ids, ",") != "3,1,2" {
		t.Fatalf("renderer saw %v", h.renderer.ids)
	}
	for i, ok := range h.renderer.covers {
		if !ok {
			t.Fatalf("item %s had no cover at render time", h.renderer.ids[i])
		}
	}
	for _, item := range report.Ranked {
		if item.State != gallery.StateClassified {
			t.Fatalf("item %s state = %s", item.ID, item.State)
		}
		if item.CoverPath != "" || item.AssetDir != "" {
			t.Fatalf("item %s still references scratch: %+v", item.ID, item)
		}
		if item.Title != "Resolved "+item.ID {
			t.Fatalf("manifest metadata not merged: %q", item.Title)
		}
	}
	if len(report.Summary.Succeeded) != 3 || len(report.Summary.Failed) != 0 || len(report.Summary.Filtered) != 0 {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}
	assertScratchEmpty(t, h.root)
}

func TestRunFilteredItemProducesNoArtifact(t *testing.T) {
	h := newHarness(t, entries("1"), nil)
	h.resolver.outcome = func(id string, _ int) (gallery.Manifest, error) {
		return gallery.Manifest{}, services.Wrap(services.ErrFiltered, "resolve", "policy", "only 3 assets", nil)
	}

	report, err := h.coordinator.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ArtifactPath != "" || report.Outcome != OutcomeNoResults {
		t.Fatalf("expected no artifact, got %+v", report)
	}
	if got := report.Summary.Filtered; len(got) != 1 || got[0] != "1" {
		t.Fatalf("Filtered = %v", got)
	}
	if len(report.Summary.Failed) != 0 {
		t.Fatalf("Failed = %v", report.Summary.Failed)
	}
	if calls := h.resolver.Calls("1"); calls != 1 {
		t.Fatalf("filtered item resolved %d times, want 1", calls)
	}
	if h.renderer.rendered != 0 {
		t.Fatal("renderer should not run without results")
	}
	assertScratchEmpty(t, h.root)
}

func TestRunTimeoutDiscardsResultsAndReleasesScratch(t *testing.T) {
	h := newHarness(t, entries("1", "2"), func(o *Options) {
		o.ClassifyTimeout = 5 * time.Second
	})
	h.classifier.stall = map[string]time.Duration{"1": 2 * time.Second, "2": 2 * time.Second}

	started := time.Now()
	report, err := h.coordinator.Run(context.Background(), Request{TotalTimeout: 150 * time.Millisecond})
	if !errors.Is(err, services.ErrRunTimeout) {
		t.Fatalf("expected ErrRunTimeout, got %v", err)
	}
	if report != nil {
		t.Fatalf("expected no report on timeout, got %+v", report)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("run took %s to unwind", elapsed)
	}
	assertScratchEmpty(t, h.root)

	// The guard is released, so a follow-up run is admitted.
	h.lister.entries = nil
	report, err = h.coordinator.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("follow-up Run: %v", err)
	}
	if report.Outcome != OutcomeNoListing {
		t.Fatalf("follow-up outcome = %s", report.Outcome)
	}
}

func TestRunRetriesResolveUntilSuccess(t *testing.T) {
	h := newHarness(t, entries("1"), nil)
	h.classifier.scores["1"] = 50
	h.resolver.outcome = func(id string, call int) (gallery.Manifest, error) {
		if call < 3 {
			return gallery.Manifest{}, services.Wrap(services.ErrTransient, "resolve", "fetch", "status 503", nil)
		}
		return manifestFor(id), nil
	}

	report, err := h.coordinator.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := h.resolver.Calls("1"); calls != 3 {
		t.Fatalf("resolve calls = %d, want 3", calls)
	}
	if got := report.Summary.Succeeded; len(got) != 1 || got[0] != "1" {
		t.Fatalf("Succeeded = %v", got)
	}
	if report.ArtifactPath == "" {
		t.Fatal("expected artifact after eventual success")
	}
}

func TestRunFailsItemAfterExhaustingResolveAttempts(t *testing.T) {
	h := newHarness(t, entries("1", "2"), nil)
	h.classifier.scores["2"] = 10
	h.resolver.outcome = func(id string, _ int) (gallery.Manifest, error) {
		if id == "1" {
			return gallery.Manifest{}, errors.New("connection reset")
		}
		return manifestFor(id), nil
	}

	report, err := h.coordinator.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := h.resolver.Calls("1"); calls != 3 {
		t.Fatalf("resolve calls = %d, want exactly 3", calls)
	}
	if got := report.Summary.Failed; len(got) != 1 || got[0] != "1" {
		t.Fatalf("Failed = %v", got)
	}
	if reason := report.Summary.Reasons["1"]; reason != "resolve_failed" {
		t.Fatalf("reason = %q", reason)
	}
	if got := report.Summary.Succeeded; len(got) != 1 || got[0] != "2" {
		t.Fatalf("sibling item should succeed, Succeeded = %v", got)
	}
	assertScratchEmpty(t, h.root)
}

func TestResolveErrorMatchesDownloadAndResolveFailure(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.resolver.outcome = func(string, int) (gallery.Manifest, error) {
		return gallery.Manifest{}, nil
	}
	_, err := h.coordinator.resolve(context.Background(), "9", 0, logging.NewNop())
	if !errors.Is(err, services.ErrDownloadFailed) || !errors.Is(err, services.ErrResolveFailed) {
		t.Fatalf("expected download+resolve failure, got %v", err)
	}
	if !errors.Is(err, errEmptyManifest) {
		t.Fatalf("expected empty manifest cause, got %v", err)
	}
	if calls := h.resolver.Calls("9"); calls != 3 {
		t.Fatalf("empty manifest retried %d times, want 3", calls)
	}
}

func TestRunSettlesEveryListedItemExactlyOnce(t *testing.T) {
	listed := append(entries("ok1", "filtered", "broken", "unavailable", "ok2", "panics"), gallery.Entry{ID: "ok1"}, gallery.Entry{ID: " "})
	h := newHarness(t, listed, func(o *Options) { o.DownloadWorkers = 2 })
	h.classifier.scores = map[string]float64{"ok1": 20, "ok2": 70}
	h.classifier.errs["unavailable"] = services.ErrBackendUnavailable
	h.resolver.outcome = func(id string, _ int) (gallery.Manifest, error) {
		switch id {
		case "filtered":
			return gallery.Manifest{}, services.ErrFiltered
		case "broken":
			return gallery.Manifest{}, errors.New("boom")
		case "panics":
			panic("resolver exploded")
		}
		return manifestFor(id), nil
	}

	report, err := h.coordinator.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := report.Summary
	if s.Listed != 6 {
		t.Fatalf("Listed = %d, want 6 unique ids", s.Listed)
	}
	if len(s.PendingDownload)+len(s.PendingClassify) != 0 {
		t.Fatalf("items left pending: %+v", s)
	}
	seen := map[string]int{}
	for _, set := range [][]string{s.Succeeded, s.Filtered, s.Failed} {
		for _, id := range set {
			seen[id]++
		}
	}
	for _, id := range []string{"ok1", "filtered", "broken", "unavailable", "ok2", "panics"} {
		if seen[id] != 1 {
			t.Fatalf("item %s appears %d times across terminal sets", id, seen[id])
		}
	}
	if s.Reasons["unavailable"] != "backend_unavailable" {
		t.Fatalf("unavailable reason = %q", s.Reasons["unavailable"])
	}
	if s.Reasons["panics"] != "download_failed" {
		t.Fatalf("panics reason = %q", s.Reasons["panics"])
	}
	if len(report.Ranked) != 2 || report.Ranked[0].ID != "ok2" {
		t.Fatalf("unexpected ranking %+v", report.Ranked)
	}
	assertScratchEmpty(t, h.root)
}

func TestRunRejectsConcurrentInvocation(t *testing.T) {
	h := newHarness(t, entries("1"), nil)
	h.classifier.scores["1"] = 10
	h.lister.entered = make(chan struct{})
	h.lister.release = make(chan struct{})

	firstErr := make(chan error, 1)
	go func() {
		_, err := h.coordinator.Run(context.Background(), Request{})
		firstErr <- err
	}()
	<-h.lister.entered

	if _, err := h.coordinator.Run(context.Background(), Request{}); !errors.Is(err, services.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if _, err := h.coordinator.RunSingle(context.Background(), "1", 0); !errors.Is(err, services.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning from RunSingle, got %v", err)
	}

	close(h.lister.release)
	if err := <-firstErr; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if h.renderer.rendered != 1 {
		t.Fatalf("renderer ran %d times, want 1", h.renderer.rendered)
	}
}

func TestClassifyTimeoutDoesNotBlockNextItem(t *testing.T) {
	h := newHarness(t, entries("slow", "fast"), func(o *Options) {
		o.ClassifyTimeout = 100 * time.Millisecond
		o.CancelGrace = 20 * time.Millisecond
	})
	h.classifier.stall = map[string]time.Duration{"slow": 400 * time.Millisecond}
	h.classifier.scores["fast"] = 30

	started := time.Now()
	report, err := h.coordinator.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 350*time.Millisecond {
		t.Fatalf("stalled classifier blocked the run for %s", elapsed)
	}
	if report.Summary.Reasons["slow"] != "classify_timeout" {
		t.Fatalf("slow reason = %q", report.Summary.Reasons["slow"])
	}
	if got := report.Summary.Succeeded; len(got) != 1 || got[0] != "fast" {
		t.Fatalf("Succeeded = %v", got)
	}
	assertScratchEmpty(t, h.root)
}

func TestRunWithEmptyOrFailedListing(t *testing.T) {
	h := newHarness(t, nil, nil)
	report, err := h.coordinator.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcome != OutcomeNoListing || report.ArtifactPath != "" {
		t.Fatalf("unexpected report %+v", report)
	}

	h.lister.err = errors.New("status 500")
	h.lister.entries = entries("1")
	report, err = h.coordinator.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run with lister error: %v", err)
	}
	if report.Outcome != OutcomeNoListing {
		t.Fatalf("lister error should be treated as empty listing, got %s", report.Outcome)
	}
	if h.resolver.Calls("1") != 0 {
		t.Fatal("no item should be resolved after a listing failure")
	}
}

func TestRunSingleRendersItemCard(t *testing.T) {
	h := newHarness(t, nil, func(o *Options) { o.MinAssets = 35 })
	h.classifier.scores["7"] = 60

	report, err := h.coordinator.RunSingle(context.Background(), "7", 0)
	if err != nil {
		t.Fatalf("RunSingle: %v", err)
	}
	if filepath.Base(report.ArtifactPath) != "item_7.jpg" {
		t.Fatalf("artifact = %q", report.ArtifactPath)
	}
	if len(h.resolver.minAssets) != 1 || h.resolver.minAssets[0] != 0 {
		t.Fatalf("single item should resolve without asset minimum, got %v", h.resolver.minAssets)
	}
	if len(report.Ranked) != 1 || report.Ranked[0].Score() != 60 {
		t.Fatalf("unexpected ranked %+v", report.Ranked)
	}
	assertScratchEmpty(t, h.root)
}

func TestRunSingleSurfacesItemFailure(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.classifier.errs["7"] = services.ErrBackendUnavailable

	report, err := h.coordinator.RunSingle(context.Background(), "7", 0)
	if report != nil {
		t.Fatalf("expected no report, got %+v", report)
	}
	if !errors.Is(err, services.ErrClassifyFailed) || !errors.Is(err, services.ErrBackendUnavailable) {
		t.Fatalf("expected classify failure, got %v", err)
	}
	if _, err := h.coordinator.RunSingle(context.Background(), "  ", 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty id, got %v", err)
	}
	assertScratchEmpty(t, h.root)
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Dependencies{}, Options{}, logging.NewNop()); err == nil {
		t.Fatal("expected error for missing collaborators")
	}
}

func TestFindCoverPrefersFirstPage(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"2.jpg", "1.png", "1.jpg", "cover.gif"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, ok := findCover(dir)
	if !ok || filepath.Base(got) != "1.jpg" {
		t.Fatalf("findCover = %q, %v", got, ok)
	}

	dir = t.TempDir()
	for _, name := range []string{"10.jpg", "3.webp", "x.jpg", "2.gif"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, ok = findCover(dir)
	if !ok || filepath.Base(got) != "3.webp" {
		t.Fatalf("fallback findCover = %q, %v", got, ok)
	}

	if _, ok := findCover(t.TempDir()); ok {
		t.Fatal("expected no cover in empty dir")
	}
}
