package version

import (
	"runtime"
	"runtime/debug"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Service != "modelyard-api" {
		t.Errorf("Service = %q", b.Service)
	}
	if b.Package != Version {
		t.Errorf("Package = %q, want %q", b.Package, Version)
	}
	if b.Go != runtime.Version() {
		t.Errorf("Go = %q", b.Go)
	}
	if b.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", b.Platform)
	}
	if b.Git == "" {
		t.Error("Git should never be empty")
	}
}

func TestCommit(t *testing.T) {
	saved := Commit
	t.Cleanup(func() { Commit = saved })

	stamped := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}}}, true
	}
	none := func() (*debug.BuildInfo, bool) { return nil, false }

	tests := []struct {
		name   string
		commit string
		read   func() (*debug.BuildInfo, bool)
		want   string
	}{
		{"injected wins", "deadbeef", stamped, "deadbeef"},
		{"vcs stamp", "", stamped, "abc123"},
		{"nothing", "", none, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Commit = tt.commit
			if got := commit(tt.read); got != tt.want {
				t.Errorf("commit() = %q, want %q", got, tt.want)
			}
		})
	}
}
