package jobsub

import (
	"strings"

	"golang.org/x/mod/semver"
)

// canonical returns the semver form of v, accepting versions with or
// without the leading 'v'. It returns "" if v cannot be parsed.
func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// CompareVersions compares two versions. It returns:
//
//	-1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2.
//
// An unparsable version sorts before any valid one.
func CompareVersions(v1, v2 string) int {
	c1, c2 := canonical(v1), canonical(v2)
	switch {
	case c1 == "" && c2 == "":
		return 0
	case c1 == "":
		return -1
	case c2 == "":
		return 1
	}
	return semver.Compare(c1, c2)
}

// VersionAtLeast reports whether version is min or newer.
func VersionAtLeast(version, min string) bool {
	return CompareVersions(version, min) >= 0
}
