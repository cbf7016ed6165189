// Package version holds build-time version info injected via ldflags.
//
//	go build -ldflags "-X github.com/NicolasHaas/matchlobby/pkg/version.tag=v0.3.0
//	  -X github.com/NicolasHaas/matchlobby/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/matchlobby/pkg/version.date=2026-01-01"
package version

import "runtime"

var (
	tag    = ""
	commit = "unknown"
	date   = "unknown"
)

// Info is the version of a running binary, logged at startup.
type Info struct {
	Tag       string `json:"tag,omitempty"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// Get returns the build info of this binary.
func Get() Info {
	return Info{Tag: tag, Commit: commit, Date: date, GoVersion: runtime.Version()}
}

// String returns the tag, the commit, or "dev", whichever is set first.
func (i Info) String() string {
	switch {
	case i.Tag != "":
		return i.Tag
	case i.Commit != "unknown":
		return i.Commit
	default:
		return "dev"
	}
}

// String is shorthand for Get().String().
func String() string { return Get().String() }

// Banner formats the --version line for a binary named name.
func Banner(name string) string {
	i := Get()
	s := name + " " + i.String()
	if i.Commit != "unknown" && i.Tag != "" {
		s += " (" + i.Commit + ")"
	}
	if i.Date != "unknown" {
		s += " built " + i.Date
	}
	return s + " " + i.GoVersion
}
