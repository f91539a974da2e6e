// SPDX-License-Identifier: MPL-2.0

// Package depspec defines the map-shaped dependency specification accepted by
// the grab service, the static table of synonymous coordinate keys, and the
// canonical Coordinates form that resolution engines work with.
//
// A Spec may name the same coordinate through any member of its synonym group
// (for example "groupId" and "org" both mean "group"). Members of one group that
// agree are treated as a single key; members that disagree are rejected with a
// *ConflictingKeysError.
package depspec
