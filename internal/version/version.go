// Package version reports the build version of the binary.
package version

import (
	"fmt"
	"runtime"
)

// Version and BuildTime are set at build time with -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// String returns the formatted version line.
func String() string {
	return fmt.Sprintf("unroll version %s (built %s, %s)", Version, BuildTime, runtime.Version())
}
