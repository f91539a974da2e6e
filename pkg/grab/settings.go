// SPDX-License-Identifier: MPL-2.0

package grab

import "sync/atomic"

// Settings holds the three process-wide switches of a Service. Reads and
// writes are atomic; concurrent writers race benignly and the last write wins.
type Settings struct {
	enabled          atomic.Bool
	autoDownload     atomic.Bool
	disableChecksums atomic.Bool
}

// NewSettings returns settings with the given initial values.
func NewSettings(enabled, autoDownload, disableChecksums bool) *Settings {
	s := &Settings{}
	s.enabled.Store(enabled)
	s.autoDownload.Store(autoDownload)
	s.disableChecksums.Store(disableChecksums)
	return s
}

// DefaultSettings enables grabbing and downloads with checksums verified.
func DefaultSettings() *Settings {
	return NewSettings(true, true, false)
}

func (s *Settings) Enabled() bool          { return s.enabled.Load() }
func (s *Settings) AutoDownload() bool     { return s.autoDownload.Load() }
func (s *Settings) DisableChecksums() bool { return s.disableChecksums.Load() }

func (s *Settings) SetEnabled(v bool)          { s.enabled.Store(v) }
func (s *Settings) SetAutoDownload(v bool)     { s.autoDownload.Store(v) }
func (s *Settings) SetDisableChecksums(v bool) { s.disableChecksums.Store(v) }
