// Package version holds build information, set with -ldflags at release.
package version

import "fmt"

var (
	Version   = "0.1.0"
	GitCommit = ""
)

// FullVersion returns the version with the commit when known.
func FullVersion() string {
	if GitCommit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, GitCommit)
}
