/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTimeDuration(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		yaml    string
		want    time.Duration
		wantErr bool
	}{
		{name: "duration string", json: `"1m30s"`, yaml: `1m30s`, want: 90 * time.Second},
		{name: "nanoseconds", json: `1000000000`, yaml: `1000000000`, want: time.Second},
		{name: "negative", json: `"-1s"`, yaml: `-1s`, wantErr: true},
		{name: "garbage", json: `"soon"`, yaml: `soon`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromJSON TimeDuration
			err := json.Unmarshal([]byte(tt.json), &fromJSON)
			var fromYAML TimeDuration
			yamlErr := yaml.Unmarshal([]byte(tt.yaml), &fromYAML)
			if tt.wantErr {
				require.Error(t, err)
				require.Error(t, yamlErr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, yamlErr)
			require.Equal(t, tt.want, fromJSON.Duration())
			require.Equal(t, tt.want, fromYAML.Duration())
		})
	}

	out, err := json.Marshal(struct {
		TTL TimeDuration `json:"ttl"`
	}{TimeDuration(time.Minute)})
	require.NoError(t, err)
	require.JSONEq(t, `{"ttl":"1m0s"}`, string(out))
}
