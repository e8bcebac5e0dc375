// Package lookup resolves a requested command name to a runnable
// absolute path, searching PATH the way the agent's callers expect.
package lookup

import (
	"errors"
	"os"
	"strings"
)

// ErrNotFound is returned when no candidate resolves to an existing
// regular file.
var ErrNotFound = errors.New("command not found")

// DefaultSearchPath is searched when the PATH environment variable is
// unset. Matches the conventional sbin-inclusive agent search list.
const DefaultSearchPath = "/bin:/usr/bin:/sbin:/usr/sbin"

// maxCandidateLen bounds a single joined directory/command candidate.
// Longer candidates are skipped rather than attempted.
const maxCandidateLen = 4096

// Command resolves cmd to a runnable path.
//
// If cmd names an existing regular file it is returned unchanged.
// Otherwise each :-delimited directory of PATH (or DefaultSearchPath when
// PATH is unset) is joined with cmd, and the first candidate that is an
// existing regular file wins. Returns ErrNotFound when nothing matches.
func Command(cmd string) (string, error) {
	if isRegularFile(cmd) {
		return cmd, nil
	}

	search := os.Getenv("PATH")
	if search == "" {
		search = DefaultSearchPath
	}

	for _, dir := range strings.Split(search, ":") {
		candidate := dir + "/" + cmd
		if len(candidate) >= maxCandidateLen {
			continue
		}
		if isRegularFile(candidate) {
			return candidate, nil
		}
	}

	return "", ErrNotFound
}

// isRegularFile reports whether path exists and is a regular file.
func isRegularFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
