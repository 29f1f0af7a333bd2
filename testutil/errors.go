/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-apiorch/apierr"
)

// RequireNoErrorInChannel asserts that a buffered channel holds no error.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var err error
	select {
	case err = <-c:
	default:
	}
	require.NoError(t, err, msgAndArgs...)
}

// RequireErrorIsAny asserts that at least one of the errors in err's chain matches at least one target.
func RequireErrorIsAny(t require.TestingT, err error, targets []error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	for _, targetErr := range targets {
		if errors.Is(err, targetErr) {
			return
		}
	}
	var expectedErrTexts []string
	for _, targetErr := range targets {
		expectedErrTexts = append(expectedErrTexts, fmt.Sprintf("%q", targetErr.Error()))
	}
	require.FailNow(t, fmt.Sprintf("At least one target error should be in err chain:\n"+
		"expected: [%s]\n"+
		"in chain: %s", strings.Join(expectedErrTexts, "; "), buildErrorChainString(err),
	), msgAndArgs...)
}

// RequireAPIError asserts that err is *apierr.Error of the given kind and HTTP status and returns it.
func RequireAPIError(t require.TestingT, err error, wantKind apierr.Kind, wantStatus int) *apierr.Error {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		require.FailNow(t, fmt.Sprintf("*apierr.Error should be in err chain:\n"+
			"in chain: %s", buildErrorChainString(err)))
	}
	require.Equal(t, wantKind, apiErr.Kind, "unexpected error kind")
	require.Equal(t, wantStatus, apiErr.StatusCode, "unexpected status code")
	return apiErr
}

func buildErrorChainString(err error) string {
	if err == nil {
		return ""
	}
	e := errors.Unwrap(err)
	chain := fmt.Sprintf("%q", err.Error())
	for e != nil {
		chain += fmt.Sprintf("\n\t%q", e.Error())
		e = errors.Unwrap(e)
	}
	return chain
}
