// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by grab's tests: environment
// overrides (MustSetenv), file and artifact fixtures (MustWriteFile,
// WriteArtifact), closing on cleanup and a FakeClock.
package testutil
