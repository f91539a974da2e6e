// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	// RepositoryTypeGit is a git hosting root.
	RepositoryTypeGit = "git"
	// RepositoryTypeDir is a local directory tree.
	RepositoryTypeDir = "dir"
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidRepositoryEntry is the sentinel error wrapped by InvalidRepositoryEntryError.
	ErrInvalidRepositoryEntry = errors.New("invalid repository entry")
)

type (
	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// Config is grab's user configuration.
	Config struct {
		// Enabled turns dependency acquisition on or off as a whole.
		Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
		// AutoDownload allows fetching artifacts missing from the cache.
		AutoDownload bool `json:"auto_download" yaml:"auto_download" mapstructure:"auto_download"`
		// DisableChecksums skips verification against the lock file.
		DisableChecksums bool `json:"disable_checksums" yaml:"disable_checksums" mapstructure:"disable_checksums"`
		// CacheDir overrides the artifact cache location. Empty means
		// ~/.grab/cache.
		CacheDir     string            `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty" mapstructure:"cache_dir"`
		Repositories []RepositoryEntry `json:"repositories,omitempty" yaml:"repositories,omitempty" mapstructure:"repositories"`
		UI           UIConfig          `json:"ui" yaml:"ui" mapstructure:"ui"`
	}

	// RepositoryEntry configures one repository consulted after those added
	// at runtime and before the built-in defaults.
	RepositoryEntry struct {
		Name string `json:"name" yaml:"name" mapstructure:"name"`
		Root string `json:"root" yaml:"root" mapstructure:"root"`
		// Type is "git" or "dir"; empty infers it from Root.
		Type string `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
	}

	// InvalidRepositoryEntryError reports a repository entry the schema
	// cannot reject on its own.
	InvalidRepositoryEntryError struct {
		Index  int
		Name   string
		Reason string
	}

	// UIConfig contains output preferences.
	UIConfig struct {
		Verbose     bool        `json:"verbose" yaml:"verbose" mapstructure:"verbose"`
		ColorScheme ColorScheme `json:"color_scheme" yaml:"color_scheme" mapstructure:"color_scheme"`
	}
)

func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns ErrInvalidColorScheme for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

func (e *InvalidRepositoryEntryError) Error() string {
	return fmt.Sprintf("repositories[%d] (%s): %s", e.Index, e.Name, e.Reason)
}

// Unwrap returns ErrInvalidRepositoryEntry for errors.Is() compatibility.
func (e *InvalidRepositoryEntryError) Unwrap() error { return ErrInvalidRepositoryEntry }

// Validate returns an *InvalidColorSchemeError for unknown schemes. The zero
// value is treated as auto.
func (c ColorScheme) Validate() error {
	switch c {
	case "", ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return nil
	default:
		return &InvalidColorSchemeError{Value: c}
	}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AutoDownload: true,
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
		},
	}
}

// Validate checks what the CUE schema cannot express: repository names must
// be unique.
func (c *Config) Validate() error {
	if err := c.UI.ColorScheme.Validate(); err != nil {
		return err
	}
	seen := make(map[string]int, len(c.Repositories))
	for i, r := range c.Repositories {
		if strings.TrimSpace(r.Root) == "" {
			return &InvalidRepositoryEntryError{Index: i, Name: r.Name, Reason: "root must not be empty"}
		}
		if first, dup := seen[r.Name]; dup {
			return &InvalidRepositoryEntryError{
				Index:  i,
				Name:   r.Name,
				Reason: fmt.Sprintf("duplicate name (same as repositories[%d])", first),
			}
		}
		seen[r.Name] = i
	}
	return nil
}
