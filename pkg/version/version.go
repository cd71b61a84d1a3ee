// Package version exposes the application version derived from build
// metadata.
//
// Priority: -ldflags override > VCS info from debug.BuildInfo > "dev"
// fallback.
package version

import "runtime/debug"

// AppName is the application name used in version strings and
// user-agent headers.
const AppName = "paperscope"

// Version is the release version, set via -ldflags at build time.
var Version = "dev"

// commitOverride is set via -ldflags for container builds where .git is
// unavailable. Empty string means no override.
var commitOverride string

// Commit is the short git commit hash (8 chars) from build info. Set to
// "dev" when build info is unavailable (e.g. `go test`, non-git builds).
var Commit = initCommit()

func initCommit() string {
	if commitOverride != "" {
		return short(commitOverride)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return short(s.Value)
		}
	}
	return "dev"
}

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "paperscope/<commit>" for use in user-agent strings and
// logging.
func Full() string {
	return AppName + "/" + Commit
}
