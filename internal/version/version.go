// Package version carries build information injected with -ldflags.
package version

import "fmt"

// Overridden at release build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String formats the build information for --version output.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
