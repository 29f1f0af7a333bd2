/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package inflight provides a registry of in-progress calls keyed by request signature.
// The first caller for a key becomes the owner of the call, later callers join it
// and receive the same outcome once the owner settles it.
package inflight
