// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package version parses semantic application versions.
package version

import (
	"fmt"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
)

// semanticAlphabet defines the allowed characters for the pre-release and
// build metadata portions of a semantic version string.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

var semverRE = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*` +
	`[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

// SemVer is a parsed semantic version.
type SemVer struct {
	Major, Minor, Patch uint32
	PreRelease          string
	BuildMetadata       string
}

// String formats the version per the semantic versioning 2.0.0 spec.
func (v *SemVer) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.PreRelease != "" {
		s += "-" + v.PreRelease
	}
	if v.BuildMetadata != "" {
		s += "+" + v.BuildMetadata
	}
	return s
}

func parseUint32(s string, fieldName string) (uint32, error) {
	val, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed semver %s: %w", fieldName, err)
	}
	return uint32(val), nil
}

// ParseSemVer parses the version string.
func ParseSemVer(s string) (*SemVer, error) {
	m := semverRE.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("malformed version string %q: does not conform to "+
			"semver specification", s)
	}
	v := &SemVer{PreRelease: m[4], BuildMetadata: m[5]}
	var err error
	if v.Major, err = parseUint32(m[1], "major"); err != nil {
		return nil, err
	}
	if v.Minor, err = parseUint32(m[2], "minor"); err != nil {
		return nil, err
	}
	if v.Patch, err = parseUint32(m[3], "patch"); err != nil {
		return nil, err
	}
	return v, nil
}

// Parse validates the version and, if it has no build metadata, appends the
// VCS revision recorded in the binary. Parse panics on a malformed version.
func Parse(version string) string {
	v, err := ParseSemVer(version)
	if err != nil {
		panic(err)
	}
	if v.BuildMetadata == "" {
		v.BuildMetadata = NormalizeString(vcsCommitID())
	}
	return v.String()
}

// vcsCommitID is the short VCS revision from the build info, if any.
func vcsCommitID() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var rev string
	var dirty bool
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 9 {
		rev = rev[:9]
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return rev
}

// NormalizeString returns the passed string stripped of all characters which
// are not valid for pre-release and build metadata strings.
func NormalizeString(str string) string {
	var result strings.Builder
	for _, r := range str {
		if strings.ContainsRune(semanticAlphabet, r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
