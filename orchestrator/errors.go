/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package orchestrator

import (
	"errors"

	"github.com/acronis/go-apiorch/apierr"
)

// ErrClosed is returned for calls made after (or aborted by) Close.
var ErrClosed = errors.New("orchestrator is closed")

// Error is the classified failure of a call. Transports should return it to make failures retryable.
type Error = apierr.Error

// ErrorKind classifies a failed call.
type ErrorKind = apierr.Kind

// Error kinds.
const (
	ErrorKindFailed           = apierr.KindFailed
	ErrorKindRateLimited      = apierr.KindRateLimited
	ErrorKindTransientNetwork = apierr.KindTransientNetwork
	ErrorKindClient           = apierr.KindClient
	ErrorKindServer           = apierr.KindServer
)
