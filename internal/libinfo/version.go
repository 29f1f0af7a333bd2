/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo reports the version of the module the binary is built from.
package libinfo

import (
	"debug/buildinfo"
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const moduleName = "github.com/acronis/go-apiorch"

// PrometheusVersionLabel is the label of the build info gauge that holds the module version.
const PrometheusVersionLabel = "version"

const unknownVersion = "v0.0.0"

var libVersion string
var libVersionOnce sync.Once

// GetLibVersion returns the version of the module the binary is built from, "v0.0.0" if unknown.
func GetLibVersion() string {
	libVersionOnce.Do(initLibVersion)
	return libVersion
}

// NewBuildInfoGauge creates a gauge that is always 1 and carries the module version as a label.
func NewBuildInfoGauge(namespace string) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build information of the API orchestrator.",
		ConstLabels: prometheus.Labels{PrometheusVersionLabel: GetLibVersion()},
	}, func() float64 { return 1 })
}

func initLibVersion() {
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		libVersion = extractLibVersion(buildInfo, moduleName)
	}
	if libVersion == "" {
		libVersion = unknownVersion
	}
}

// extractLibVersion returns the version of modName ("modName" or "modName/vX") from the build info.
// The main module is checked first since the command is built from this module itself.
func extractLibVersion(buildInfo *buildinfo.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	re, err := regexp.Compile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if err != nil {
		return "" // should never happen
	}
	if re.MatchString(buildInfo.Main.Path) && buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
		return buildInfo.Main.Version
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
