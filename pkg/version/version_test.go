package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"tagged", Info{Tag: "v1.2.0", Commit: "abc1234"}, "v1.2.0"},
		{"commit only", Info{Commit: "abc1234"}, "abc1234"},
		{"dev", Info{Commit: "unknown"}, "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBannerDevBuild(t *testing.T) {
	got := Banner("lobby")
	if !strings.HasPrefix(got, "lobby dev") {
		t.Errorf("Banner = %q, want prefix %q", got, "lobby dev")
	}
	if !strings.HasSuffix(got, runtime.Version()) {
		t.Errorf("Banner = %q, missing Go version", got)
	}
}
