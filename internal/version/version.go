package version

import "runtime/debug"

// Version is set at build time via -ldflags "-X .../internal/version.Version=..."
var Version = "dev"

// GetVersion returns the linked version, or the module version when the
// binary was installed with go install.
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
