// Package source scrapes the listing site: Lister turns a popularity page
// into gallery entries and Resolver turns one gallery page into a download
// manifest.
//
// Both parse HTML with goquery. The resolver prefers the JSON document the
// site embeds in its gallery page and falls back to scraping thumbnails when
// that payload is missing or malformed. A gallery below the minimum asset
// count resolves to services.ErrFiltered, which callers must not retry.
package source
