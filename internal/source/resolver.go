package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"curator/internal/config"
	"curator/internal/gallery"
	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/transport"
)

const maxPageBytes = 16 << 20

var (
	embeddedGallery = regexp.MustCompile(`(?s)window\._gallery\s*=\s*JSON\.parse\((.*?)\);`)
	mediaIDPattern  = regexp.MustCompile(`/galleries/(\d+)/`)
	droppedTagTypes = map[string]struct{}{"language": {}, "category": {}, "translated": {}}
	pageExtensions  = map[string]string{"j": ".jpg", "p": ".png", "w": ".webp", "g": ".gif"}
)

// Resolver turns a gallery id into a download manifest.
type Resolver struct {
	client       *transport.Client
	baseURL      string
	assetBaseURL string
	manifestPath string
	logger       *slog.Logger
}

// NewResolver wires a resolver against the configured site.
func NewResolver(cfg *config.Config, client *transport.Client, logger *slog.Logger) *Resolver {
	return &Resolver{
		client:       client,
		baseURL:      cfg.Source.BaseURL,
		assetBaseURL: cfg.Source.AssetBaseURL,
		manifestPath: cfg.Source.ManifestPath,
		logger:       logging.NewComponentLogger(logger, "resolver"),
	}
}

// Resolve fetches the gallery page for id. It returns services.ErrFiltered
// when the gallery has fewer than minAssets pages; any other error is
// transient and may be retried.
func (r *Resolver) Resolve(ctx context.Context, id string, minAssets int) (gallery.Manifest, error) {
	if r.baseURL == "" {
		return gallery.Manifest{}, services.Wrap(services.ErrConfiguration, "resolve", "resolve url", "source.base_url is not set", nil)
	}
	target := r.baseURL + strings.ReplaceAll(r.manifestPath, "{id}", url.PathEscape(id))

	resp, err := r.client.Get(ctx, target)
	if err != nil {
		return gallery.Manifest{}, services.Wrap(services.ErrTransient, "resolve", "fetch gallery page", "", err)
	}
	defer transport.Drain(resp)
	if resp.StatusCode != http.StatusOK {
		return gallery.Manifest{}, services.Wrap(services.ErrTransient, "resolve", "fetch gallery page", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return gallery.Manifest{}, services.Wrap(services.ErrTransient, "resolve", "read gallery page", "", err)
	}

	manifest, err := r.fromEmbeddedJSON(body, minAssets)
	if err == nil && len(manifest.AssetURLs) > 0 {
		return manifest, nil
	}
	if errors.Is(err, services.ErrFiltered) {
		return gallery.Manifest{}, err
	}
	if err != nil {
		r.logger.Debug("embedded manifest unusable; falling back to html", logging.String(logging.FieldItemID, id), logging.Error(err))
	}

	manifest, err = r.fromHTML(body, minAssets)
	if err != nil {
		if errors.Is(err, services.ErrFiltered) {
			return gallery.Manifest{}, err
		}
		return gallery.Manifest{}, services.Wrap(services.ErrTransient, "resolve", "parse gallery page", "", err)
	}
	return manifest, nil
}

type embeddedPayload struct {
	MediaID flexString `json:"media_id"`
	Title   struct {
		Pretty  string `json:"pretty"`
		English string `json:"english"`
	} `json:"title"`
	Images struct {
		Pages []struct {
			T string `json:"t"`
		} `json:"pages"`
	} `json:"images"`
	Tags []struct {
		Type string `json:"type"`
		Name string `json:"name"`
	} `json:"tags"`
}

// flexString accepts either a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (r *Resolver) fromEmbeddedJSON(body []byte, minAssets int) (gallery.Manifest, error) {
	match := embeddedGallery.FindSubmatch(body)
	if match == nil {
		return gallery.Manifest{}, errors.New("embedded gallery payload not found")
	}
	raw := bytes.TrimSpace(match[1])

	// The payload is usually a JSON string literal holding the document.
	var inner string
	if err := json.Unmarshal(raw, &inner); err == nil {
		raw = []byte(inner)
	}
	var payload embeddedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return gallery.Manifest{}, fmt.Errorf("decode embedded payload: %w", err)
	}

	pages := payload.Images.Pages
	if len(pages) < minAssets {
		return gallery.Manifest{}, filtered(len(pages), minAssets)
	}
	mediaID := strings.TrimSpace(string(payload.MediaID))
	if mediaID == "" {
		return gallery.Manifest{}, errors.New("embedded payload has no media id")
	}

	urls := make([]string, 0, len(pages))
	for i, page := range pages {
		ext, ok := pageExtensions[page.T]
		if !ok {
			ext = ".jpg"
		}
		urls = append(urls, r.assetURL(mediaID, i+1, ext))
	}

	var tags []string
	for _, tag := range payload.Tags {
		if _, drop := droppedTagTypes[tag.Type]; drop {
			continue
		}
		tags = append(tags, tag.Name)
	}
	title := payload.Title.Pretty
	if title == "" {
		title = payload.Title.English
	}
	return gallery.Manifest{AssetURLs: urls, Title: title, Tags: tags}, nil
}

func (r *Resolver) fromHTML(body []byte, minAssets int) (gallery.Manifest, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return gallery.Manifest{}, fmt.Errorf("parse document: %w", err)
	}

	cover := doc.Find("#cover img").First()
	if cover.Length() == 0 {
		return gallery.Manifest{}, errors.New("cover image not found")
	}
	match := mediaIDPattern.FindStringSubmatch(imageSource(cover))
	if match == nil {
		return gallery.Manifest{}, errors.New("media id not found")
	}
	mediaID := match[1]

	thumbs := doc.Find(".thumb-container")
	if thumbs.Length() < minAssets {
		return gallery.Manifest{}, filtered(thumbs.Length(), minAssets)
	}

	urls := make([]string, 0, thumbs.Length())
	thumbs.Each(func(i int, thumb *goquery.Selection) {
		src := imageSource(thumb.Find("img").First())
		ext := ".jpg"
		switch {
		case strings.Contains(src, ".webp"):
			ext = ".webp"
		case strings.Contains(src, ".png"):
			ext = ".png"
		case strings.Contains(src, ".gif"):
			ext = ".gif"
		}
		urls = append(urls, r.assetURL(mediaID, i+1, ext))
	})

	var tags []string
	doc.Find("#tags .tags a.tag .name").Each(func(_ int, name *goquery.Selection) {
		if text := strings.TrimSpace(name.Text()); text != "" {
			tags = append(tags, text)
		}
	})
	title := strings.TrimSpace(doc.Find("#info h1 .pretty").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("#info h1").First().Text())
	}
	return gallery.Manifest{AssetURLs: urls, Title: title, Tags: tags}, nil
}

func (r *Resolver) assetURL(mediaID string, page int, ext string) string {
	return r.assetBaseURL + "/galleries/" + mediaID + "/" + strconv.Itoa(page) + ext
}

func imageSource(img *goquery.Selection) string {
	if src, ok := img.Attr("data-src"); ok && src != "" {
		return src
	}
	src, _ := img.Attr("src")
	return src
}

func filtered(pages, minAssets int) error {
	return services.Wrap(services.ErrFiltered, "resolve", "asset count", fmt.Sprintf("%d pages below minimum %d", pages, minAssets), nil)
}
