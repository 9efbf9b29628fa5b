package version

import "fmt"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// ClientAgent is the default Client-Agent header sent to the Horde API,
// formatted as name:version:contact per the API's convention.
func ClientAgent() string {
	return fmt.Sprintf("hordewatch:%s:github.com/horde-monitor", Version)
}
