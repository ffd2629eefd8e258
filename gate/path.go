// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package gate

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// CleanAndExpandPath expands environment variables and a leading ~ or ~user
// in the passed path, cleans the result, and returns it.
func CleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}

	// os.ExpandEnv only handles POSIX-style $VARIABLE, not %VARIABLE%.
	path = os.ExpandEnv(path)
	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	rest := path[1:]
	userName := rest
	if i := strings.IndexAny(rest, `/\`); i != -1 {
		userName, rest = rest[:i], rest[i:]
	} else {
		rest = ""
	}

	var u *user.User
	var err error
	if userName == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}
	homeDir := "."
	if err == nil && u.HomeDir != "" {
		homeDir = u.HomeDir
	}
	return filepath.Join(homeDir, rest)
}
