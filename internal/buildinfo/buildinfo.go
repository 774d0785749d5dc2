// Package buildinfo holds version metadata set at link time with
// -ldflags "-X github.com/modoterra/ptail/internal/buildinfo.Version=...".
package buildinfo

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns the one-line version banner.
func String() string {
	return "ptail " + Version + " (" + Commit + ") built " + Date
}
