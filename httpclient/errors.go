/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/acronis/go-apiorch/apierr"
	"github.com/acronis/go-apiorch/restapi"
)

// ClassifyError converts an error of restapi.DoRequestAndUnmarshalJSON into *apierr.Error.
// Errors caused by cancellation of ctx are returned as is. now is used to resolve HTTP-date Retry-After values.
func ClassifyError(ctx context.Context, err error, now time.Time) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && apierr.IsContextError(err) {
		return ctx.Err()
	}

	var waitErr *RateLimitingWaitError
	if errors.As(err, &waitErr) {
		return apierr.New(apierr.KindRateLimited, err)
	}

	var clientErr *restapi.ClientError
	if !errors.As(err, &clientErr) {
		return classifyNetworkError(err)
	}
	if clientErr.StatusCode == 0 {
		return classifyNetworkError(err)
	}

	apiErr := &apierr.Error{Kind: kindByStatus(clientErr.StatusCode), StatusCode: clientErr.StatusCode, Err: err}
	var respErr *restapi.ErrorResponseData
	if errors.As(err, &respErr) && respErr.Err != nil && respErr.Err.Message != "" {
		apiErr.Err = errors.New(respErr.Err.Message)
	}
	if apiErr.Kind == apierr.KindRateLimited {
		if retryAfter, ok := ParseRetryAfter(clientErr.Header, now); ok {
			apiErr.RetryAfter = retryAfter
		}
	}
	return apiErr
}

func classifyNetworkError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "connection reset") {
		return apierr.New(apierr.KindTransientNetwork, err)
	}
	return apierr.New(apierr.KindFailed, err)
}

func kindByStatus(status int) apierr.Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return apierr.KindRateLimited
	case status >= 400 && status < 500:
		return apierr.KindClient
	case status >= 500:
		return apierr.KindServer
	default:
		return apierr.KindFailed
	}
}

// ParseRetryAfter parses Retry-After header given either in seconds or as an HTTP-date.
// A date in the past results in zero delay.
func ParseRetryAfter(header http.Header, now time.Time) (time.Duration, bool) {
	val := strings.TrimSpace(header.Get("Retry-After"))
	if val == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(val); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(val)
	if err != nil {
		return 0, false
	}
	if d := at.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}
