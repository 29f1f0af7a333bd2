/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs long-living units (HTTP servers, periodic workers) of a process
// and stops them gracefully on OS signals or context cancellation.
package service
