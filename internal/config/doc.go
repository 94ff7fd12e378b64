// Package config loads, normalizes, and validates curator configuration files.
//
// It defines the strongly typed Config struct, supplies sensible defaults,
// expands user paths, applies environment fallbacks for the proxy, classifier
// endpoint and ntfy topic, and exposes helpers such as CreateSample for
// writing the embedded sample file.
//
// Every package that needs configuration receives a *config.Config (or a
// projection of it) so defaults and validation stay centralized here.
package config
