/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package libinfo

import (
	"debug/buildinfo"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestExtractLibVersion(t *testing.T) {
	tests := []struct {
		name        string
		buildInfo   *buildinfo.BuildInfo
		expectedVer string
	}{
		{
			name: "main module",
			buildInfo: &buildinfo.BuildInfo{
				Main: debug.Module{Path: moduleName, Version: "v1.4.0"},
			},
			expectedVer: "v1.4.0",
		},
		{
			name: "main module, devel build",
			buildInfo: &buildinfo.BuildInfo{
				Main: debug.Module{Path: moduleName, Version: "(devel)"},
			},
			expectedVer: "",
		},
		{
			name: "dependency",
			buildInfo: &buildinfo.BuildInfo{
				Main: debug.Module{Path: "github.com/other/app"},
				Deps: []*debug.Module{{Path: moduleName, Version: "v1.2.3"}},
			},
			expectedVer: "v1.2.3",
		},
		{
			name: "dependency, v2",
			buildInfo: &buildinfo.BuildInfo{
				Deps: []*debug.Module{{Path: moduleName + "/v2", Version: "v2.0.0"}},
			},
			expectedVer: "v2.0.0",
		},
		{
			name: "module not found",
			buildInfo: &buildinfo.BuildInfo{
				Deps: []*debug.Module{{Path: "github.com/other/module", Version: "v1.0.0"}},
			},
			expectedVer: "",
		},
		{
			name:        "nil build info",
			buildInfo:   nil,
			expectedVer: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expectedVer, extractLibVersion(tt.buildInfo, moduleName))
		})
	}
}

func TestNewBuildInfoGauge(t *testing.T) {
	require.NotEmpty(t, GetLibVersion())

	gauge := NewBuildInfoGauge("apiorch")
	expected := `
# HELP apiorch_build_info Build information of the API orchestrator.
# TYPE apiorch_build_info gauge
apiorch_build_info{version="` + GetLibVersion() + `"} 1
`
	require.NoError(t, testutil.CollectAndCompare(gauge, strings.NewReader(expected)))
}
