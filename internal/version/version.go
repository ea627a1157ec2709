// Package version carries build metadata for the relay binaries.
//
// Values are injected at link time:
//
//	go build -ldflags "-X github.com/rickgao/autowhitelist/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/autowhitelist/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/autowhitelist/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"

	// Commit is the short git hash.
	Commit = "unknown"

	// BuildTime is the UTC link time (ISO 8601).
	BuildTime = "unknown"
)

// Info is the JSON shape reported by the health endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Current returns the build metadata of the running binary.
func Current() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
	}
}

// String returns "version (commit) built time".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
