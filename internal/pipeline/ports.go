package pipeline

import (
	"context"

	"curator/internal/fetch"
	"curator/internal/gallery"
	"curator/internal/source"
)

// Lister returns the entries of a listing window.
type Lister interface {
	List(ctx context.Context, window source.Window) ([]gallery.Entry, error)
}

// Resolver turns an item id into a download manifest. It returns an error
// matching services.ErrFiltered when policy rejects the item.
type Resolver interface {
	Resolve(ctx context.Context, id string, minAssets int) (gallery.Manifest, error)
}

// Fetcher downloads asset URLs into a directory. Per-asset failures are
// reported, not returned.
type Fetcher interface {
	Fetch(ctx context.Context, urls []string, dir string) (fetch.Report, error)
}

// Renderer draws ranked items onto a single artifact.
type Renderer interface {
	Render(items []*gallery.Item, outputPath string) (string, error)
}
