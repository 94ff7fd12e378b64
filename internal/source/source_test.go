package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/testsupport"
	"curator/internal/transport"
)

const listingHTML = `<html><body>
<div class="container index-container index-popular">
  <div class="gallery"><a class="cover" href="/g/101/" data-tags="6346 12227"><img src="x"/><div class="caption">First Gallery</div></a></div>
  <div class="gallery"><a class="cover" href="/g/202/" data-tags=""><div class="caption"> Second </div></a></div>
  <div class="gallery"><a class="cover" href="/users/1/">bad</a></div>
  <div class="gallery"><a class="cover" href="/g/101/">dup</a></div>
</div>
<div class="container index-container">
  <div class="gallery"><a class="cover" href="/g/999/"><div class="caption">Not popular</div></a></div>
</div>
</body></html>`

func newTestClient(t *testing.T) *transport.Client {
	t.Helper()
	client, err := transport.New(transport.Options{UserAgent: "curator-test"})
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	return client
}

func TestListerParsesPopularContainer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/language/chinese/popular-week", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingHTML)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithSource(srv.URL))
	lister := NewLister(cfg, newTestClient(t), logging.NewNop())

	entries, err := lister.List(context.Background(), WindowWeek)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].ID != "101" || entries[0].Title != "First Gallery" || len(entries[0].Tags) != 2 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].ID != "202" || entries[1].Title != "Second" || len(entries[1].Tags) != 0 {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestListerFallsBackOnceOnBadStatus(t *testing.T) {
	var fallbackHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/language/chinese/popular-today", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	})
	mux.HandleFunc("/language/chinese/", func(w http.ResponseWriter, r *http.Request) {
		fallbackHits.Add(1)
		fmt.Fprint(w, `<div class="index-container"><div class="gallery"><a class="cover" href="/g/7/"><div class="caption">Seven</div></a></div></div>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithSource(srv.URL))
	entries, err := NewLister(cfg, newTestClient(t), logging.NewNop()).List(context.Background(), WindowToday)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "7" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if fallbackHits.Load() != 1 {
		t.Fatalf("expected one fallback request, got %d", fallbackHits.Load())
	}
}

func TestListerReportsMissingContainer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>maintenance</body></html>")
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithSource(srv.URL))
	if _, err := NewLister(cfg, newTestClient(t), logging.NewNop()).List(context.Background(), WindowToday); err == nil {
		t.Fatal("expected error for page without listing container")
	}
}

func embeddedPage(pages int) string {
	types := make([]string, pages)
	for i := range types {
		types[i] = `{"t":"j","w":1280,"h":1800}`
	}
	if pages > 1 {
		types[1] = `{"t":"p"}`
	}
	if pages > 2 {
		types[2] = `{"t":"w"}`
	}
	doc := fmt.Sprintf(`{"id":101,"media_id":"555","title":{"english":"English Title","pretty":"Pretty Title"},"images":{"pages":[%s]},"tags":[{"type":"language","name":"chinese"},{"type":"artist","name":"someone"},{"type":"tag","name":"full color"},{"type":"category","name":"doujinshi"}]}`, strings.Join(types, ","))
	quoted := fmt.Sprintf("%q", doc)
	return `<html><script>window._gallery = JSON.parse(` + quoted + `);</script></html>`
}

func TestResolverUsesEmbeddedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/g/101/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, embeddedPage(3))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithSource(srv.URL))
	resolver := NewResolver(cfg, newTestClient(t), logging.NewNop())

	manifest, err := resolver.Resolve(context.Background(), "101", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{
		srv.URL + "/galleries/555/1.jpg",
		srv.URL + "/galleries/555/2.png",
		srv.URL + "/galleries/555/3.webp",
	}
	if len(manifest.AssetURLs) != len(want) {
		t.Fatalf("unexpected urls: %v", manifest.AssetURLs)
	}
	for i := range want {
		if manifest.AssetURLs[i] != want[i] {
			t.Fatalf("url %d = %q want %q", i, manifest.AssetURLs[i], want[i])
		}
	}
	if manifest.Title != "Pretty Title" {
		t.Fatalf("unexpected title %q", manifest.Title)
	}
	if strings.Join(manifest.Tags, ",") != "someone,full color" {
		t.Fatalf("expected language/category tags dropped, got %v", manifest.Tags)
	}
}

func TestResolverFiltersBelowMinimum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, embeddedPage(3))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithSource(srv.URL))
	_, err := NewResolver(cfg, newTestClient(t), logging.NewNop()).Resolve(context.Background(), "101", 35)
	if !errors.Is(err, services.ErrFiltered) {
		t.Fatalf("expected ErrFiltered, got %v", err)
	}
}

const htmlGallery = `<html><body>
<div id="cover"><a><img data-src="https://t.example/galleries/777/cover.jpg"/></a></div>
<div id="info"><h1 class="title"><span class="pretty">Html Title</span></h1></div>
<section id="tags"><div class="tag-container"><span class="tags">
  <a class="tag"><span class="name">alpha</span></a><a class="tag"><span class="name">beta</span></a>
</span></div></section>
<div class="thumb-container"><img data-src="https://t.example/galleries/777/1t.jpg"/></div>
<div class="thumb-container"><img src="https://t.example/galleries/777/2t.webp"/></div>
</body></html>`

func TestResolverFallsBackToHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, htmlGallery)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithSource(srv.URL))
	resolver := NewResolver(cfg, newTestClient(t), logging.NewNop())

	manifest, err := resolver.Resolve(context.Background(), "777", 2)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(manifest.AssetURLs) != 2 || manifest.AssetURLs[1] != srv.URL+"/galleries/777/2.webp" {
		t.Fatalf("unexpected urls: %v", manifest.AssetURLs)
	}
	if manifest.Title != "Html Title" || strings.Join(manifest.Tags, ",") != "alpha,beta" {
		t.Fatalf("unexpected metadata: %+v", manifest)
	}

	if _, err := resolver.Resolve(context.Background(), "777", 3); !errors.Is(err, services.ErrFiltered) {
		t.Fatalf("expected html path to filter, got %v", err)
	}
}

func TestResolverNonOKIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithSource(srv.URL))
	_, err := NewResolver(cfg, newTestClient(t), logging.NewNop()).Resolve(context.Background(), "1", 0)
	if !errors.Is(err, services.ErrTransient) || errors.Is(err, services.ErrFiltered) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestParseWindow(t *testing.T) {
	cases := map[string]string{"": "popular-today", "Week": "popular-week", "month": "popular-month", "all": "popular"}
	for input, slug := range cases {
		w, err := ParseWindow(input)
		if err != nil {
			t.Fatalf("ParseWindow(%q): %v", input, err)
		}
		if w.Slug() != slug {
			t.Fatalf("ParseWindow(%q).Slug() = %q want %q", input, w.Slug(), slug)
		}
	}
	if _, err := ParseWindow("yesterday"); err == nil {
		t.Fatal("expected error for unknown window")
	}
}
