// Package main hosts the curator CLI entrypoint and command graph.
//
// The Cobra-based command tree loads configuration once, acquires the
// scratch root for commands that process items, and hands work to the
// pipeline coordinator. Output is plain text: an acknowledgement line, then
// either the rendered artifact with a ranking table or a short failure
// message.
//
// Keep this package lean: add behaviour to the internal packages first and
// surface it here through commands or flags.
package main
