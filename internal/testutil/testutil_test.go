// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMustSetenvRestores(t *testing.T) {
	const key = "GRAB_TESTUTIL_SETENV"
	cleanup := MustSetenv(t, key, "1")
	if os.Getenv(key) != "1" {
		t.Fatalf("%s not set", key)
	}
	cleanup()
	if _, ok := os.LookupEnv(key); ok {
		t.Errorf("%s still set after cleanup", key)
	}
}

func TestWriteArtifact(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := WriteArtifact(t, root, "g", "m", "1.0.0", map[string]string{"lib/a.txt": "a"})
	if dir != filepath.Join(root, "g", "m", "1.0.0") {
		t.Errorf("WriteArtifact() = %q", dir)
	}
	data, err := os.ReadFile(filepath.Join(dir, "lib", "a.txt"))
	if err != nil || string(data) != "a" {
		t.Errorf("artifact file = %q, %v", data, err)
	}

	dir = WriteArtifact(t, root, "g", "m", "2.0.0", nil)
	if _, err := os.Stat(filepath.Join(dir, "README")); err != nil {
		t.Errorf("default file missing: %v", err)
	}
}

func TestFakeClock(t *testing.T) {
	t.Parallel()

	c := NewFakeClock(time.Time{})
	start := c.Now()
	if start.Year() != 2020 {
		t.Errorf("default start = %v", start)
	}
	c.Advance(time.Hour)
	if got := c.Now().Sub(start); got != time.Hour {
		t.Errorf("Advance(1h) moved %v", got)
	}
	later := time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("Set() = %v, want %v", c.Now(), later)
	}
}
