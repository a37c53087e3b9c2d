// Package version holds build information injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/jackzampolin/toolrun/version.GitRelease=v0.3.0"
package version

import (
	"fmt"
	"runtime"
)

var (
	// GitRelease is the release tag, or "dev" for local builds.
	GitRelease = "dev"
	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"
	// GitCommitDate is the commit timestamp.
	GitCommitDate = "unknown"
	// GoInfo describes the toolchain and target.
	GoInfo = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
)
