// Package version reports build information for the API and the CLI.
package version

import (
	"runtime"
	"runtime/debug"
)

// Service is the name reported by /version.
const Service = "modelyard-api"

// Set via ldflags at build time:
//
//	-X github.com/zulandar/modelyard/internal/version.Version=v0.3.0
var (
	Version = "dev"
	Commit  = ""
	Date    = "unknown"
)

// Build describes the running binary.
type Build struct {
	Service  string `json:"service"`
	Package  string `json:"package"`
	Git      string `json:"git"`
	Go       string `json:"go"`
	Platform string `json:"platform"`
	Date     string `json:"date,omitempty"`
}

// Get returns the build info. When Commit was not injected it falls back to
// the VCS revision stamped by the Go toolchain, or "unknown".
func Get() Build {
	return Build{
		Service:  Service,
		Package:  Version,
		Git:      commit(debug.ReadBuildInfo),
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
		Date:     Date,
	}
}

func commit(read func() (*debug.BuildInfo, bool)) string {
	if Commit != "" {
		return Commit
	}
	if info, ok := read(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return "unknown"
}
