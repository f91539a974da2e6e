// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/invowk/grab/pkg/depspec"
)

var (
	// ErrArtifactNotFound is returned when no repository has the artifact.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrNoMatchingVersion is returned when the artifact exists but no
	// version satisfies the requested constraint.
	ErrNoMatchingVersion = errors.New("no matching version")

	// ErrOffline is returned when downloads are disabled and the cache
	// cannot satisfy the request.
	ErrOffline = errors.New("artifact not cached and downloads are disabled")

	// ErrChecksumMismatch is returned when cached content differs from the
	// checksum recorded in the lock file.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrDependencyCycle is returned when transitive dependencies loop.
	ErrDependencyCycle = errors.New("dependency cycle")

	// ErrInvalidRepository is returned for malformed repository definitions.
	ErrInvalidRepository = errors.New("invalid repository")

	// ErrInvalidConstraint is returned for unparseable version constraints.
	ErrInvalidConstraint = errors.New("invalid version constraint")
)

type (
	// ArtifactNotFoundError lists the repositories that were searched.
	ArtifactNotFoundError struct {
		Coordinates  depspec.Coordinates
		Repositories []string
	}

	// NoMatchingVersionError lists the versions that were available.
	NoMatchingVersionError struct {
		Coordinates depspec.Coordinates
		Repository  string
		Available   []string
	}

	// OfflineError names the artifact that could not be served from cache.
	OfflineError struct {
		Coordinates depspec.Coordinates
	}

	// ChecksumMismatchError reports the recorded and the actual checksum.
	ChecksumMismatchError struct {
		Coordinates depspec.Coordinates
		Expected    string
		Actual      string
	}

	// CycleError holds the chain of modules forming the cycle.
	CycleError struct {
		Chain []string
	}

	// InvalidRepositoryError reports why a repository was rejected.
	InvalidRepositoryError struct {
		Name   string
		Reason string
	}
)

func (e *ArtifactNotFoundError) Error() string {
	if len(e.Repositories) == 0 {
		return fmt.Sprintf("artifact %s not found: no repositories configured", e.Coordinates)
	}
	return fmt.Sprintf("artifact %s not found in %s", e.Coordinates, strings.Join(e.Repositories, ", "))
}

// Unwrap returns ErrArtifactNotFound for errors.Is() compatibility.
func (e *ArtifactNotFoundError) Unwrap() error { return ErrArtifactNotFound }

func (e *NoMatchingVersionError) Error() string {
	return fmt.Sprintf("no version of %s matches %q in %s (available: %s)",
		e.Coordinates.Key(), e.Coordinates.Version, e.Repository, strings.Join(e.Available, ", "))
}

// Unwrap returns ErrNoMatchingVersion for errors.Is() compatibility.
func (e *NoMatchingVersionError) Unwrap() error { return ErrNoMatchingVersion }

func (e *OfflineError) Error() string {
	return fmt.Sprintf("%s is not cached and downloads are disabled", e.Coordinates)
}

// Unwrap returns ErrOffline for errors.Is() compatibility.
func (e *OfflineError) Unwrap() error { return ErrOffline }

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: lock file has %s, cache has %s", e.Coordinates, e.Expected, e.Actual)
}

// Unwrap returns ErrChecksumMismatch for errors.Is() compatibility.
func (e *ChecksumMismatchError) Unwrap() error { return ErrChecksumMismatch }

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Chain, " -> ")
}

// Unwrap returns ErrDependencyCycle for errors.Is() compatibility.
func (e *CycleError) Unwrap() error { return ErrDependencyCycle }

func (e *InvalidRepositoryError) Error() string {
	if e.Name == "" {
		return "invalid repository: " + e.Reason
	}
	return fmt.Sprintf("invalid repository %q: %s", e.Name, e.Reason)
}

// Unwrap returns ErrInvalidRepository for errors.Is() compatibility.
func (e *InvalidRepositoryError) Unwrap() error { return ErrInvalidRepository }
