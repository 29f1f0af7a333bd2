/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-apiorch/apierr"
)

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{name: "absent"},
		{name: "seconds", value: "7", want: 7 * time.Second, wantOK: true},
		{name: "zero seconds", value: "0", wantOK: true},
		{name: "negative seconds", value: "-3"},
		{name: "http date", value: now.Add(90 * time.Second).Format(http.TimeFormat), want: 90 * time.Second, wantOK: true},
		{name: "http date in the past", value: now.Add(-time.Minute).Format(http.TimeFormat), wantOK: true},
		{name: "garbage", value: "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.value != "" {
				header.Set("Retry-After", tt.value)
			}
			got, ok := ParseRetryAfter(header, now)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyError(t *testing.T) {
	require.NoError(t, ClassifyError(context.Background(), nil, time.Now()))
	require.Equal(t, apierr.KindFailed, apierr.KindOf(ClassifyError(context.Background(), errors.New("boom"), time.Now())))
	require.Equal(t, apierr.KindTransientNetwork,
		apierr.KindOf(ClassifyError(context.Background(), errors.New("read: connection reset by peer"), time.Now())))
}
