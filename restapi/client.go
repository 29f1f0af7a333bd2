/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/acronis/go-apiorch/log"
)

const (
	logKeyMethod = "method"
	logKeyURI    = "uri"
	logKeyStatus = "status"
)

// maxErrorBodySnippet limits the part of a non-JSON error body kept in ClientError.
const maxErrorBodySnippet = 255

// DoRequest sends req and logs its outcome.
// A transport failure is returned as *ClientError with zero StatusCode wrapping the original error.
func DoRequest(client *http.Client, req *http.Request, logger log.FieldLogger) (*http.Response, error) {
	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("sent request", log.String(logKeyMethod, req.Method), log.String(logKeyURI, req.URL.String()))
	})

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn(fmt.Sprintf("failed to do http request %s %s", req.Method, req.URL.String()),
			log.String(logKeyMethod, req.Method),
			log.String(logKeyURI, req.URL.String()),
			log.Error(err),
		)
		return nil, &ClientError{Method: req.Method, URL: req.URL, Message: "do request", Err: err}
	}

	logger.AtLevel(log.LevelDebug, func(logFn log.LogFunc) {
		logFn("got response",
			log.String(logKeyMethod, req.Method),
			log.String(logKeyURI, req.URL.String()),
			log.Int(logKeyStatus, resp.StatusCode),
		)
	})
	return resp, nil
}

// DoRequestAndUnmarshalJSON sends req and decodes a 2xx JSON response into result.
// An empty 2xx body leaves result untouched. Any other status is returned as *ClientError
// carrying the response headers and the decoded ErrorResponseData when the body is JSON.
func DoRequestAndUnmarshalJSON(client *http.Client, req *http.Request, result any, logger log.FieldLogger) error {
	resp, err := DoRequest(client, req, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("failed to close response body after doing http request",
				log.String(logKeyMethod, req.Method),
				log.String(logKeyURI, req.URL.String()),
				log.Error(closeErr),
			)
		}
	}()

	logger = logger.With(
		log.String(logKeyMethod, req.Method),
		log.String(logKeyURI, req.URL.String()),
		log.Int(logKeyStatus, resp.StatusCode),
	)
	e := &ClientError{Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode, Header: resp.Header}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("error reading response body", log.Error(err))
		return e.wrap("reading response body", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if result == nil || len(buf) == 0 {
			return nil
		}
		if err = json.Unmarshal(buf, result); err != nil {
			logger.Error("error unmarshaling response", log.Error(err))
			return e.wrap("unmarshaling response", err)
		}
		return nil
	}

	if resp.StatusCode < 400 || resp.StatusCode >= 600 {
		e.Message = "unexpected status code"
		return e
	}

	apiErr := &ErrorResponseData{}
	if strings.Contains(resp.Header.Get("Content-Type"), ContentTypeAppJSON) && len(buf) != 0 {
		if err = json.Unmarshal(buf, apiErr); err != nil {
			logger.Error("error unmarshaling error response", log.Error(err))
			return e.wrap("unmarshaling error response", err)
		}
	}
	if apiErr.Err == nil {
		apiErr.Err = &Error{Code: ErrorCodeFromHTTPStatus(resp.StatusCode), Message: bodySnippet(buf)}
	}
	return e.wrap("error response", apiErr)
}

func bodySnippet(buf []byte) string {
	s := strings.TrimSpace(string(buf))
	if len(s) > maxErrorBodySnippet {
		s = s[:maxErrorBodySnippet]
	}
	return s
}

// NewJSONRequest creates a request with data marshaled as its JSON body.
func NewJSONRequest(ctx context.Context, method, url string, data any) (*http.Request, error) {
	if data == nil {
		return nil, fmt.Errorf("data cannot be nil")
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, fmt.Errorf("method %s is not allowed for json request", method)
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentTypeAppJSON)
	return req, nil
}
