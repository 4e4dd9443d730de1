package internal

import "fmt"

// Set at build time with -ldflags "-X github.com/Eyevinn/avdemux/internal.commitVersion=...".
var (
	commitVersion string = "v0.1"
	commitDate    string
)

// GetVersion returns the version and, when known, the commit date.
func GetVersion() string {
	if commitDate == "" {
		return commitVersion
	}
	return fmt.Sprintf("%s, date: %s", commitVersion, commitDate)
}
