package version

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const unknown = "unknown"

var (
	// set by -ldflags at build time
	gitVersion = "v0.0.0-master+$Format:%H$"
	gitCommit  = "$Format:%H$" // sha1 from git, output of $(git rev-parse HEAD)

	buildDate = "1970-01-01T00:00:00Z" // build date in ISO8601 format, output of $(date -u +'%Y-%m-%dT%H:%M:%SZ')
)

// Info describes the running binary.
type Info struct {
	Command    string `json:"command"`
	GitVersion string `json:"gitVersion"`
	GitCommit  string `json:"gitCommit"`
	BuildDate  string `json:"buildDate"`
	GoVersion  string `json:"goVersion"`
	Platform   string `json:"platform"`
}

// Get returns the build information of the binary.
func Get() Info {
	return Info{
		Command:    adjustCommand(os.Args[0]),
		GitVersion: adjustVersion(gitVersion),
		GitCommit:  adjustCommit(gitCommit),
		BuildDate:  buildDate,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s/%s (%s) %s %s", i.Command, i.GitVersion, i.Platform, i.GitCommit, i.BuildDate)
}

// adjustVersion strips "alpha", "beta", etc. from version in form
// major.minor.patch-[alpha|beta|etc].
func adjustVersion(v string) string {
	if len(v) == 0 {
		return unknown
	}
	seg := strings.SplitN(v, "-", 2)
	return seg[0]
}

// adjustCommand returns the last component of the
// OS-specific command path.
func adjustCommand(p string) string {
	if len(p) == 0 {
		return unknown
	}
	return filepath.Base(p)
}

// adjustCommit returns sufficient significant figures of the commit's git hash.
func adjustCommit(c string) string {
	if len(c) == 0 {
		return unknown
	}
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
