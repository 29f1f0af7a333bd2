/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"code.cloudfoundry.org/bytefmt"
)

// MalformedRequestError describes a request that cannot be processed, with the status code to respond with.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

// Error returns a string representation of MalformedRequestError.
func (e *MalformedRequestError) Error() string {
	return e.Message
}

func newBadRequestError(format string, args ...any) *MalformedRequestError {
	return &MalformedRequestError{HTTPStatusCode: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NewTooLargeMalformedRequestError creates a MalformedRequestError for a request body exceeding maxSizeBytes.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		HTTPStatusCode: http.StatusRequestEntityTooLarge,
		Message:        fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes)),
	}
}

// SetRequestMaxBodySize limits the request body to maxSizeBytes.
// DecodeRequestJSON reports a larger body as MalformedRequestError with 413 status code.
func SetRequestMaxBodySize(rw http.ResponseWriter, r *http.Request, maxSizeBytes uint64) {
	r.Body = http.MaxBytesReader(rw, r.Body, int64(maxSizeBytes))
}

// DecodeRequestJSON decodes the request body (a single JSON object) into dst.
// Unknown fields are rejected. Malformed requests are reported as *MalformedRequestError.
func DecodeRequestJSON(r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return &MalformedRequestError{
				HTTPStatusCode: http.StatusUnsupportedMediaType,
				Message:        fmt.Sprintf("Failed to parse Content-Type header: %s.", err),
			}
		}
		if mediaType != ContentTypeAppJSON {
			return &MalformedRequestError{
				HTTPStatusCode: http.StatusUnsupportedMediaType,
				Message:        fmt.Sprintf("Content-Type %q is not supported.", mediaType),
			}
		}
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return newBadRequestError("Request body must not be empty.")
		case errors.Is(err, io.ErrUnexpectedEOF):
			return newBadRequestError("Request body contains badly-formed JSON.")
		case errors.As(err, &syntaxErr):
			return newBadRequestError("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return newBadRequestError("Request body contains an invalid value for the %q field (at position %d).",
				typeErr.Field, typeErr.Offset)
		case errors.As(err, &maxBytesErr):
			return NewTooLargeMalformedRequestError(uint64(maxBytesErr.Limit))
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return newBadRequestError("Request body contains unknown field %s.",
				strings.TrimPrefix(err.Error(), "json: unknown field "))
		default:
			return err
		}
	}
	if dec.More() {
		return newBadRequestError("Request body must only contain a single JSON object.")
	}
	return nil
}
