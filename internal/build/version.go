package build

import (
	"fmt"
	"runtime/debug"
	"strings"
)

const (
	appMajor = 0
	appMinor = 4
	appPatch = 0
)

// These are set at link time via -ldflags "-X".
var (
	// Commit is the git describe output of the build.
	Commit string

	// RawTags is the comma separated list of build tags.
	RawTags string

	// GoVersion is the toolchain that produced the binary.
	GoVersion string
)

func init() {
	if GoVersion != "" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		GoVersion = info.GoVersion
	}
}

// Version returns the semantic version of the application.
func Version() string {
	return fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
}

// Tags returns the build tags as a slice.
func Tags() []string {
	if RawTags == "" {
		return nil
	}

	return strings.Split(RawTags, ",")
}
