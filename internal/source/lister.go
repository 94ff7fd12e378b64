package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"curator/internal/config"
	"curator/internal/gallery"
	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/transport"
)

var galleryHref = regexp.MustCompile(`/g/(\d+)/`)

// Lister reads popularity listings.
type Lister struct {
	client       *transport.Client
	baseURL      string
	listingPath  string
	fallbackPath string
	logger       *slog.Logger
}

// NewLister wires a lister against the configured site.
func NewLister(cfg *config.Config, client *transport.Client, logger *slog.Logger) *Lister {
	return &Lister{
		client:       client,
		baseURL:      cfg.Source.BaseURL,
		listingPath:  cfg.Source.ListingPath,
		fallbackPath: cfg.Source.FallbackListingPath,
		logger:       logging.NewComponentLogger(logger, "lister"),
	}
}

// List returns the entries of the requested window in page order. Callers
// treat an error the same as an empty listing.
func (l *Lister) List(ctx context.Context, window Window) ([]gallery.Entry, error) {
	if l.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "list", "resolve url", "source.base_url is not set", nil)
	}
	target := l.baseURL + strings.ReplaceAll(l.listingPath, "{window}", window.Slug())
	l.logger.Debug("fetching listing", logging.String("url", target), logging.String("window", string(window)))

	doc, status, err := fetchDocument(ctx, l.client, target)
	if err != nil && status != 0 && status != http.StatusOK && l.fallbackPath != "" {
		fallback := l.baseURL + l.fallbackPath
		l.logger.Warn("listing page unavailable; trying fallback",
			logging.Int("status", status),
			logging.String("fallback_url", fallback),
			logging.String(logging.FieldEventType, "listing_fallback"),
			logging.String(logging.FieldErrorHint, "check source.listing_path"),
			logging.String(logging.FieldImpact, "ranking uses the fallback listing"),
		)
		doc, _, err = fetchDocument(ctx, l.client, fallback)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "list", "fetch listing", "", err)
	}

	entries, err := parseListing(doc)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "list", "parse listing", "", err)
	}
	l.logger.Info("listing fetched", logging.Int("entries", len(entries)), logging.String("window", string(window)))
	return entries, nil
}

func parseListing(doc *goquery.Document) ([]gallery.Entry, error) {
	container := doc.Find("div.index-popular").First()
	if container.Length() == 0 {
		container = doc.Find("div.index-container").First()
	}
	if container.Length() == 0 {
		return nil, errors.New("listing container not found")
	}

	var entries []gallery.Entry
	seen := map[string]struct{}{}
	container.Find("div.gallery").Each(func(_ int, card *goquery.Selection) {
		link := card.Find("a.cover").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		match := galleryHref.FindStringSubmatch(href)
		if match == nil {
			return
		}
		id := match[1]
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		title := strings.TrimSpace(card.Find(".caption").First().Text())
		tags, _ := link.Attr("data-tags")
		entries = append(entries, gallery.Entry{
			ID:    id,
			Title: title,
			Tags:  strings.Fields(tags),
		})
	})
	return entries, nil
}

// fetchDocument returns the parsed page. status is the HTTP status when a
// response arrived, 0 otherwise.
func fetchDocument(ctx context.Context, client *transport.Client, target string) (*goquery.Document, int, error) {
	resp, err := client.Get(ctx, target)
	if err != nil {
		return nil, 0, fmt.Errorf("request %s: %w", target, err)
	}
	defer transport.Drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("%s returned %s", target, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("parse document: %w", err)
	}
	return doc, resp.StatusCode, nil
}
