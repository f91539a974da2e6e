// SPDX-License-Identifier: MPL-2.0

// Package config loads grab's user configuration with Viper, using CUE as the
// file format.
//
// The file lives at ~/.config/grab/config.cue ($XDG_CONFIG_HOME on Linux,
// ~/Library/Application Support/grab on macOS, %APPDATA%\grab on Windows) and
// is validated against the embedded #Config schema before it is merged over
// the defaults. Every scalar setting can be overridden from the environment
// with the GRAB_ prefix, for example GRAB_AUTO_DOWNLOAD=false.
package config
