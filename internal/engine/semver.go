// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/mod/semver"
)

const (
	latestRelease     = "latest.release"
	latestIntegration = "latest.integration"
)

// constraint is a parsed version requirement. Versions are compared in
// canonical "vMAJOR.MINOR.PATCH" form; repositories may tag with or without
// the leading "v".
type constraint struct {
	op  string
	ver string
	// raw is set for exact requests on non-semver versions.
	raw string
	// prerelease allows prerelease versions to satisfy an open constraint.
	prerelease bool
}

func parseConstraint(s string) (constraint, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "*", "latest", latestRelease:
		return constraint{op: "*"}, nil
	case latestIntegration:
		return constraint{op: "*", prerelease: true}, nil
	}

	op := "="
	for _, candidate := range []string{">=", "<=", ">", "<", "=", "^", "~"} {
		if rest, ok := strings.CutPrefix(s, candidate); ok {
			op, s = candidate, strings.TrimSpace(rest)
			break
		}
	}

	canonical := canonicalVersion(s)
	if canonical == "" {
		if op == "=" && s != "" {
			return constraint{op: "=", raw: s}, nil
		}
		return constraint{}, fmt.Errorf("%w: %q", ErrInvalidConstraint, s)
	}
	return constraint{op: op, ver: canonical, prerelease: semver.Prerelease(canonical) != ""}, nil
}

func (c constraint) matches(version string) bool {
	if c.raw != "" {
		return version == c.raw
	}
	v := canonicalVersion(version)
	if v == "" {
		return false
	}
	if semver.Prerelease(v) != "" && !c.prerelease {
		return false
	}
	cmp := semver.Compare(v, c.ver)
	switch c.op {
	case "*":
		return true
	case "=":
		return cmp == 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case "~":
		return cmp >= 0 && semver.MajorMinor(v) == semver.MajorMinor(c.ver)
	case "^":
		if cmp < 0 {
			return false
		}
		switch {
		case semver.Major(c.ver) != "v0":
			return semver.Major(v) == semver.Major(c.ver)
		case semver.MajorMinor(c.ver) != "v0.0":
			return semver.MajorMinor(v) == semver.MajorMinor(c.ver)
		default:
			return semver.Canonical(v) == semver.Canonical(c.ver)
		}
	default:
		return false
	}
}

// selectVersion returns the newest of available satisfying spec.
func selectVersion(spec string, available []string) (string, bool, error) {
	c, err := parseConstraint(spec)
	if err != nil {
		return "", false, err
	}
	for _, v := range sortVersions(available) {
		if c.matches(v) {
			return v, true, nil
		}
	}
	return "", false, nil
}

// sortVersions returns available newest first. Non-semver names sort after
// every semver one, in reverse lexical order.
func sortVersions(available []string) []string {
	out := slices.Clone(available)
	slices.SortStableFunc(out, func(a, b string) int {
		ca, cb := canonicalVersion(a), canonicalVersion(b)
		switch {
		case ca == "" && cb == "":
			return strings.Compare(b, a)
		case ca == "":
			return 1
		case cb == "":
			return -1
		}
		if c := semver.Compare(cb, ca); c != 0 {
			return c
		}
		return strings.Compare(b, a)
	})
	return slices.Compact(out)
}

func canonicalVersion(s string) string {
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	return semver.Canonical(s)
}

// isExact reports whether spec pins a single version, so a cached copy can
// satisfy it without listing the repository.
func isExact(spec string) bool {
	c, err := parseConstraint(spec)
	return err == nil && c.op == "="
}
