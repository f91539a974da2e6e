// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/invowk/grab/pkg/depspec"
)

type (
	// gitSource reads modules stored as one git repository per module.
	gitSource struct {
		repo  Repository
		creds credentials
	}

	// credentials holds the auth used for SSH and for HTTP remotes.
	credentials struct {
		ssh  transport.AuthMethod
		http transport.AuthMethod
	}
)

func (c credentials) forURL(u string) transport.AuthMethod {
	if strings.HasPrefix(u, "git@") || strings.HasPrefix(u, "ssh://") {
		return c.ssh
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return c.http
	}
	return nil
}

// moduleURL returns <root>/<group>/<module>.git, or <root>:<group>/<module>.git
// for scp-style roots such as "git@github.com".
func (g *gitSource) moduleURL(c depspec.Coordinates) string {
	sep := "/"
	if strings.HasPrefix(g.repo.Root, "git@") && !strings.Contains(g.repo.Root, ":") {
		sep = ":"
	}
	return g.repo.Root + sep + c.Group + "/" + c.Module + ".git"
}

func (g *gitSource) versions(ctx context.Context, c depspec.Coordinates) ([]string, error) {
	url := g.moduleURL(c)
	auth := g.creds.forURL(url)
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil {
		if isMissingRepository(err, auth) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to list tags of %s: %w", url, err)
	}

	var out []string
	for _, ref := range refs {
		if !ref.Name().IsTag() {
			continue
		}
		tag := ref.Name().Short()
		if canonicalVersion(tag) != "" {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		return nil, ErrArtifactNotFound
	}
	return out, nil
}

// isMissingRepository reports whether err means the remote has no such
// repository. Hosts such as GitHub answer anonymous requests for a missing
// repository with 401, so an auth challenge counts as missing when no
// credentials were sent.
func isMissingRepository(err error, auth transport.AuthMethod) bool {
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound), errors.Is(err, transport.ErrEmptyRemoteRepository):
		return true
	case errors.Is(err, transport.ErrAuthenticationRequired):
		return auth == nil
	}
	return false
}

// fetch shallow-clones the tag into dest and drops the .git directory so the
// cached tree holds only artifact content.
func (g *gitSource) fetch(ctx context.Context, c depspec.Coordinates, version, dest string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create parent directory: %w", err)
	}
	repo, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:           g.moduleURL(c),
		Auth:          g.creds.forURL(g.moduleURL(c)),
		ReferenceName: plumbing.NewTagReferenceName(version),
		SingleBranch:  true,
		Depth:         1,
		Tags:          git.NoTags,
	})
	if err != nil {
		_ = os.RemoveAll(dest) // best-effort cleanup of the partial clone
		return "", fmt.Errorf("failed to clone %s at %s: %w", g.moduleURL(c), version, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD of %s: %w", g.moduleURL(c), err)
	}
	if err := os.RemoveAll(filepath.Join(dest, git.GitDirName)); err != nil {
		return "", fmt.Errorf("failed to strip git metadata: %w", err)
	}
	return head.Hash().String(), nil
}

// loadCredentials looks for an SSH key in ~/.ssh and for a token in
// GITHUB_TOKEN, GITLAB_TOKEN or GIT_TOKEN. Missing credentials mean
// anonymous access.
func loadCredentials(getenv func(string) string) credentials {
	var c credentials
	if home, err := os.UserHomeDir(); err == nil {
		for _, key := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
			path := filepath.Join(home, ".ssh", key)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if auth, err := ssh.NewPublicKeysFromFile("git", path, ""); err == nil {
				c.ssh = auth
				break
			}
		}
	}

	tokens := []struct{ env, user string }{
		{"GITHUB_TOKEN", "x-access-token"},
		{"GITLAB_TOKEN", "gitlab-ci-token"},
		{"GIT_TOKEN", "git"},
	}
	for _, t := range tokens {
		if token := getenv(t.env); token != "" {
			c.http = &http.BasicAuth{Username: t.user, Password: token}
			break
		}
	}
	return c
}
