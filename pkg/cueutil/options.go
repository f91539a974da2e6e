// SPDX-License-Identifier: MPL-2.0

package cueutil

// DefaultMaxFileSize caps the size of a document accepted for decoding.
const DefaultMaxFileSize int64 = 5 * 1024 * 1024

type (
	decodeOptions struct {
		maxFileSize int64
		concrete    bool
		filename    string
	}

	// Option adjusts how a document is decoded.
	Option func(*decodeOptions)
)

func defaultOptions() decodeOptions {
	return decodeOptions{maxFileSize: DefaultMaxFileSize, concrete: true}
}

// WithMaxFileSize replaces DefaultMaxFileSize.
func WithMaxFileSize(size int64) Option {
	return func(o *decodeOptions) { o.maxFileSize = size }
}

// WithConcrete controls whether every field must have a concrete value after
// unification. It defaults to true; config files with optional sections set
// it to false.
func WithConcrete(concrete bool) Option {
	return func(o *decodeOptions) { o.concrete = concrete }
}

// WithFilename names the document in error messages.
func WithFilename(name string) Option {
	return func(o *decodeOptions) { o.filename = name }
}
