package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the product name printed by the CLI
const Name = "ShardMerge"

// Overridden at build time with -ldflags "-X github.com/vibesql/shardmerge/internal/version.Version=..."
var (
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildDate = "unknown"
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Get returns the version information. Without ldflags the commit falls
// back to the VCS revision stamped by the go command.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if info.GitCommit == "dev" {
		if rev := vcsRevision(); rev != "" {
			info.GitCommit = rev
		}
	}
	return info
}

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}

// String returns a one-line description for `shardmerge --version` and the
// startup log
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s, %s/%s)",
		Name, i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.OS, i.Arch)
}

// Full returns the multi-line description printed by `shardmerge version`
func (i Info) Full() string {
	return fmt.Sprintf(`%s Version Information:
  Version:    %s
  Git Commit: %s
  Build Date: %s
  Go Version: %s
  OS/Arch:    %s/%s`,
		Name, i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.OS, i.Arch)
}
