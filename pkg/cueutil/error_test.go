// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatError(t *testing.T) {
	t.Parallel()

	t.Run("nil error returns nil", func(t *testing.T) {
		t.Parallel()

		if err := FormatError(nil, "grab.cue"); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("non-CUE error is prefixed with the file", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("boom")
		err := FormatError(cause, "grab.cue")
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.HasPrefix(err.Error(), "grab.cue: ") {
			t.Errorf("error should start with the file name, got: %v", err)
		}
		if !errors.Is(err, cause) {
			t.Errorf("cause not preserved: %v", err)
		}
	})
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     []string
		expected string
	}{
		{"empty path", nil, ""},
		{"single element", []string{"enabled"}, "enabled"},
		{"nested path", []string{"ui", "verbose"}, "ui.verbose"},
		{"array index", []string{"repositories", "0", "root"}, "repositories[0].root"},
		{"consecutive indices", []string{"matrix", "1", "2"}, "matrix[1][2]"},
		{"leading number is a field", []string{"0", "name"}, "0.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := formatPath(tt.path); got != tt.expected {
				t.Errorf("formatPath(%v) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}

func TestCheckFileSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"empty", 0, false},
		{"within limit", 10, false},
		{"at limit", 100, false},
		{"over limit", 101, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := CheckFileSize(make([]byte, tt.size), 100, "config.cue")
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckFileSize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && (!strings.Contains(err.Error(), "config.cue") || !strings.Contains(err.Error(), "101")) {
				t.Errorf("error should name the file and size, got: %v", err)
			}
		})
	}
}
