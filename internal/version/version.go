// Package version holds build metadata for the feed binaries.
//
// Set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/csms-feed/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/csms-feed/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/csms-feed/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the JSON form reported by the monitor.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
}

// String returns e.g. "1.2.3 (abc1234) built 2024-01-15T10:00:00Z".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
