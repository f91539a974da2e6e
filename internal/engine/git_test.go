// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/invowk/grab/internal/testutil"
	"github.com/invowk/grab/pkg/depspec"
	"github.com/invowk/grab/pkg/resolver"
)

// initGitModule creates a repository at dir with one commit per tag, each
// writing VERSION. It returns the commit hash of every tag.
func initGitModule(t *testing.T, dir string, tags ...string) map[string]string {
	t.Helper()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	revs := make(map[string]string, len(tags))
	for i, tag := range tags {
		testutil.MustWriteFile(t, filepath.Join(dir, "VERSION"), strings.TrimPrefix(tag, "v"))
		if _, err := wt.Add("VERSION"); err != nil {
			t.Fatal(err)
		}
		hash, err := wt.Commit("release "+tag, &git.CommitOptions{Author: &object.Signature{
			Name:  "grab",
			Email: "grab@example.com",
			When:  time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
		}})
		if err != nil {
			t.Fatalf("Commit(%s) error = %v", tag, err)
		}
		if _, err := repo.CreateTag(tag, hash, nil); err != nil {
			t.Fatalf("CreateTag(%s) error = %v", tag, err)
		}
		revs[tag] = hash.String()
	}
	return revs
}

func TestGitRepository(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	revs := initGitModule(t, filepath.Join(root, "g", "m.git"), "v1.0.0", "v1.2.0", "v2.0.0", "not-a-version")
	e := newTestEngine(t, WithRepositories(Repository{Name: "origin", Root: root, Kind: KindGit}))
	ctx := context.Background()

	info := &resolver.Diagnostics{}
	uris, err := e.Resolve(ctx, nil, info, depspec.Spec{"group": "g", "module": "m", "version": "^1.0"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	sel := info.Selections()
	if len(sel) != 1 || sel[0].Version != "v1.2.0" || sel[0].Repository != "origin" {
		t.Fatalf("selections = %+v, want v1.2.0 from origin", sel)
	}

	path, err := uris[0].Path()
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(path, "VERSION"))
	if err != nil || string(data) != "1.2.0" {
		t.Errorf("cached VERSION = %q, %v; want the v1.2.0 tree", data, err)
	}
	if _, err := os.Stat(filepath.Join(path, git.GitDirName)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cached tree keeps %s: %v", git.GitDirName, err)
	}

	entry, ok := e.lock.Lookup(depspec.Coordinates{Group: "g", Module: "m", Version: "v1.2.0"})
	if !ok || entry.Revision != revs["v1.2.0"] || entry.Repository != "origin" {
		t.Errorf("lock entry = %+v, %v; want revision %s", entry, ok, revs["v1.2.0"])
	}

	_, err = e.Resolve(ctx, nil, nil, depspec.Spec{"group": "g", "module": "absent", "version": "*"})
	var nf *ArtifactNotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("Resolve(absent) error = %v, want *ArtifactNotFoundError", err)
	}
}

func TestGitVersionsListsSemverTags(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	initGitModule(t, filepath.Join(root, "g", "m.git"), "v1.0.0", "release-candidate", "v2.0.0")
	src := &gitSource{repo: Repository{Name: "origin", Root: root, Kind: KindGit}}

	got, err := src.versions(context.Background(), depspec.Coordinates{Group: "g", Module: "m"})
	if err != nil {
		t.Fatalf("versions() error = %v", err)
	}
	if len(got) != 2 || !slices.Contains(got, "v1.0.0") || !slices.Contains(got, "v2.0.0") {
		t.Errorf("versions() = %v, want [v1.0.0 v2.0.0]", got)
	}
}

func TestIsMissingRepository(t *testing.T) {
	t.Parallel()

	token := &http.BasicAuth{Username: "x-access-token", Password: "secret"}
	tests := []struct {
		name string
		err  error
		auth transport.AuthMethod
		want bool
	}{
		{"not found", transport.ErrRepositoryNotFound, nil, true},
		{"empty remote", fmt.Errorf("list: %w", transport.ErrEmptyRemoteRepository), nil, true},
		{"anonymous auth challenge", transport.ErrAuthenticationRequired, nil, true},
		{"auth challenge with credentials", transport.ErrAuthenticationRequired, token, false},
		{"auth rejected", transport.ErrAuthorizationFailed, nil, false},
		{"network", errors.New("dial tcp: connection refused"), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := isMissingRepository(tt.err, tt.auth); got != tt.want {
				t.Errorf("isMissingRepository() = %v, want %v", got, tt.want)
			}
		})
	}
}
