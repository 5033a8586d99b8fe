package version

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

func sample() Info {
	return Info{
		Version:   "0.1.0",
		GitCommit: "abc123",
		BuildDate: "2026-01-01",
		GoVersion: "go1.24.0",
		OS:        "linux",
		Arch:      "amd64",
	}
}

func TestGet(t *testing.T) {
	info := Get()

	if info.Version != Version {
		t.Errorf("Expected version %s, got %s", Version, info.Version)
	}
	if info.GitCommit == "" || info.BuildDate == "" {
		t.Errorf("Expected commit and build date, got %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("Expected go version %s, got %s", runtime.Version(), info.GoVersion)
	}
	if info.OS != runtime.GOOS || info.Arch != runtime.GOARCH {
		t.Errorf("Expected %s/%s, got %s/%s", runtime.GOOS, runtime.GOARCH, info.OS, info.Arch)
	}
}

func TestGet_LdflagsCommitWins(t *testing.T) {
	old := GitCommit
	GitCommit = "feedface"
	defer func() { GitCommit = old }()

	if got := Get().GitCommit; got != "feedface" {
		t.Errorf("Expected commit feedface, got %s", got)
	}
}

func TestInfo_String(t *testing.T) {
	expected := "ShardMerge 0.1.0 (commit: abc123, built: 2026-01-01, go: go1.24.0, linux/amd64)"
	if got := sample().String(); got != expected {
		t.Errorf("String() = %q, want %q", got, expected)
	}
}

func TestInfo_Full(t *testing.T) {
	full := sample().Full()
	for _, want := range []string{"ShardMerge Version Information:", "Git Commit: abc123", "OS/Arch:    linux/amd64"} {
		if !strings.Contains(full, want) {
			t.Errorf("Expected Full() to contain %q, got:\n%s", want, full)
		}
	}
	if lines := strings.Count(full, "\n"); lines != 5 {
		t.Errorf("Expected 6 lines, got %d", lines+1)
	}
}

func TestInfo_JSON(t *testing.T) {
	raw, err := json.Marshal(sample())
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"git_commit":"abc123"`) {
		t.Errorf("Unexpected JSON: %s", raw)
	}
}
