// Package build holds version information set at link time, e.g.
//
//	go build -ldflags "-X github.com/armadaproject/reprotest/internal/reprotest/build.ReleaseVersion=v0.3.0"
package build

import "runtime"

var (
	ReleaseVersion = "UNKNOWN"
	GitCommit      = "UNKNOWN"
	BuildTime      = "UNKNOWN"
	GoVersion      = runtime.Version()
)
