package common

// Version information, set at build time via ldflags.
var (
	version   = "0.5.0-dev"
	build     = "unknown"
	gitCommit = "unknown"
)

// GetVersion returns the server version.
func GetVersion() string {
	return version
}

// GetBuild returns the build identifier.
func GetBuild() string {
	return build
}

// GetGitCommit returns the git commit the binary was built from.
func GetGitCommit() string {
	return gitCommit
}
