// Package version carries build metadata injected with -ldflags -X.
package version

import "fmt"

var (
	// Version is the release tag.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String renders the metadata on one line for -version output.
func String() string {
	return fmt.Sprintf("evalmetrics %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
