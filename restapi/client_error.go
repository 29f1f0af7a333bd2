/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"fmt"
	"net/http"
	"net/url"
)

// ClientError is returned by DoRequest and DoRequestAndUnmarshalJSON.
// StatusCode is zero when no response was received.
type ClientError struct {
	Message    string
	Method     string
	URL        *url.URL
	StatusCode int
	Header     http.Header
	Err        error
}

func (e *ClientError) wrap(message string, err error) *ClientError {
	e.Message = message
	e.Err = err
	return e
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	str := fmt.Sprintf("method: [%s] url: [%s] status: [%d] message: %s", e.Method, e.URL, e.StatusCode, e.Message)
	if e.Err != nil {
		str += fmt.Sprintf(" error: %s", e.Err.Error())
	}
	return str
}

// Unwrap returns the underlying error.
func (e *ClientError) Unwrap() error {
	return e.Err
}
