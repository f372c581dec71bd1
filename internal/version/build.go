// Package version reports build metadata and checks for newer releases.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"golang.org/x/mod/semver"
)

// Set with -ldflags "-X github.com/mrz1836/satchel/internal/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // linker-injected build metadata
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Current returns the build metadata, filling gaps from the module build
// info when the linker flags were not set.
func Current() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		}
	}
	return info
}

// ShortCommit returns the first seven characters of the commit.
func (i Info) ShortCommit() string {
	if len(i.Commit) > 7 {
		return i.Commit[:7]
	}
	return i.Commit
}

// String renders the one-line form printed by "satchel version".
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "satchel %s", i.Version)
	if c := i.ShortCommit(); c != "" {
		fmt.Fprintf(&b, " (%s)", c)
	}
	fmt.Fprintf(&b, " %s %s", i.GoVersion, i.Platform)
	return b.String()
}

// UserAgent is sent with outbound HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("satchel/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// IsRelease reports whether v is a semantic version rather than a dev build
// or a bare commit hash.
func IsRelease(v string) bool {
	return semver.IsValid(canonical(v))
}

// CompareVersions returns -1, 0 or 1 as v1 is older than, equal to or newer
// than v2. Dev builds sort before every release.
func CompareVersions(v1, v2 string) int {
	c1, c2 := canonical(v1), canonical(v2)
	ok1, ok2 := semver.IsValid(c1), semver.IsValid(c2)
	switch {
	case !ok1 && !ok2:
		return 0
	case !ok1:
		return -1
	case !ok2:
		return 1
	}
	return semver.Compare(c1, c2)
}

// IsNewerVersion reports whether latest is newer than current.
func IsNewerVersion(current, latest string) bool {
	return CompareVersions(latest, current) > 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == "dev" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}
