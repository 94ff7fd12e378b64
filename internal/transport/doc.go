// Package transport builds the HTTP clients curator uses to reach the
// listing site and its asset host.
//
// A Client applies the configured proxy, User-Agent and Referer to every
// request and, when a request rate is configured, paces calls with a token
// bucket so page scraping stays polite.
package transport
