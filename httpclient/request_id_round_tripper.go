/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"

	"github.com/rs/xid"
)

// HeaderRequestID is the header carrying the request ID.
const HeaderRequestID = "X-Request-ID"

// RequestIDRoundTripper sets X-Request-ID header of outgoing requests.
// The ID is taken from the request context, a new one is generated if the context has none.
type RequestIDRoundTripper struct {
	Delegate http.RoundTripper
	// NewID generates request IDs. xid is used if nil.
	NewID func() string
}

// NewRequestIDRoundTripper creates an HTTP transport with X-Request-ID header support.
func NewRequestIDRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return &RequestIDRoundTripper{Delegate: delegate}
}

// RoundTrip adds X-Request-ID header to the request.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get(HeaderRequestID) != "" {
		return rt.Delegate.RoundTrip(r)
	}
	requestID := GetRequestIDFromContext(r.Context())
	if requestID == "" {
		if rt.NewID != nil {
			requestID = rt.NewID()
		} else {
			requestID = xid.New().String()
		}
	}
	r = CloneHTTPRequest(r)
	r.Header.Set(HeaderRequestID, requestID)
	return rt.Delegate.RoundTrip(r)
}
