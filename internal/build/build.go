// Package build exposes the binary's build identity.
package build

import "runtime/debug"

// Commit is set at link time:
//
//	go build -ldflags "-X github.com/depthbomb/weathergoat-sub000/internal/build.Commit=$(git rev-parse HEAD)"
var Commit string

// CommitHash returns the short commit hash the binary was built from, falling
// back to the module build info when no ldflags value was injected. Returns
// "unknown" when neither is available.
func CommitHash() string {
	if Commit != "" {
		return short(Commit)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return short(s.Value)
			}
		}
	}
	return "unknown"
}

func short(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
