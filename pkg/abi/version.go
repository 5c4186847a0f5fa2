package abi

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is a plugin or host version. Build is informational and never
// participates in ordering.
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
	Build string
}

// ParseVersion accepts semver-like strings such as "1.2.3", "v1.2",
// "1.2.3-rc1+linux". Prerelease and metadata are folded into Build.
func ParseVersion(s string) (Version, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("parse version %q: %w", s, err)
	}
	build := v.Prerelease()
	if md := v.Metadata(); md != "" {
		if build != "" {
			build += "+"
		}
		build += md
	}
	return Version{
		Major: uint32(v.Major()),
		Minor: uint32(v.Minor()),
		Patch: uint32(v.Patch()),
		Build: build,
	}, nil
}

// MustParseVersion is ParseVersion for constants; it panics on bad input.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare orders versions lexicographically over (major, minor, patch).
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpU32(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpU32(v.Minor, o.Minor)
	default:
		return cmpU32(v.Patch, o.Patch)
	}
}

// Less reports v < o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Semver converts to a Masterminds version for constraint checks.
func (v Version) Semver() *semver.Version {
	return semver.New(uint64(v.Major), uint64(v.Minor), uint64(v.Patch), "", "")
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

func cmpU32(a, b uint32) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
