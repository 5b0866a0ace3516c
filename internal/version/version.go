// Package version reports how the ba binary was built. Release builds set
// the variables below with -ldflags; local builds keep the defaults.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns the text printed by ba version.
func Info() string {
	return fmt.Sprintf(
		"ba version %s\ncommit: %s\nbuilt: %s\ngo: %s %s/%s\n",
		resolvedVersion(),
		Commit,
		Date,
		runtime.Version(),
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// resolvedVersion falls back to the module version recorded by go install
// when no version was injected.
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return Version
}
