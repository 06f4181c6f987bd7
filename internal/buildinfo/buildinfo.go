// Package buildinfo carries version metadata stamped in with -ldflags -X.
package buildinfo

import "runtime"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"commit":    Commit,
		"builtAt":   BuiltAt,
		"goVersion": runtime.Version(),
	}
}

// String is the one-line form printed by the CLI.
func String() string {
	s := "harborplan " + Version
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	if BuiltAt != "" {
		s += " built " + BuiltAt
	}
	return s + " " + runtime.Version()
}
