/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-apiorch/log"
)

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	rec.Warn("rate limited", log.Int("attempt", 2), log.String("resource", "devices"))
	rec.With(log.String("component", "gate")).Info("permit acquired")

	require.Len(t, rec.Entries(), 2)

	_, found := rec.FindEntry("unknown")
	require.False(t, found)

	entry, found := rec.FindEntry("rate limited")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, entry.Level)

	attempt, found := entry.FindField("attempt")
	require.True(t, found)
	require.EqualValues(t, 2, attempt.Int)

	resource, found := entry.FindField("resource")
	require.True(t, found)
	require.Equal(t, "devices", string(resource.Bytes))

	entry, found = rec.FindEntry("permit acquired")
	require.True(t, found)
	_, found = entry.FindField("component")
	require.True(t, found)

	rec.WithLevel(log.LevelError).Info("dropped")
	_, found = rec.FindEntry("dropped")
	require.False(t, found)

	require.Len(t, rec.FindAllEntriesByFilter(func(e RecordedEntry) bool { return e.Level == log.LevelInfo }), 1)

	rec.Reset()
	require.Empty(t, rec.Entries())
}

func TestNewLoggerWithOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput(&buf)
	logger.Errorf("cache sweep failed: %d", 3)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	require.Equal(t, "error", m["level"])
	require.Equal(t, "cache sweep failed: 3", m["msg"])
}
