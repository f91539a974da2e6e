// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/invowk/grab/pkg/depspec"
)

const (
	// KindGit repositories serve each module as <root>/<group>/<module>.git
	// with one semver tag per version.
	KindGit RepositoryKind = "git"
	// KindDir repositories serve <root>/<group>/<module>/<version>/ trees.
	KindDir RepositoryKind = "dir"
)

type (
	// RepositoryKind selects how a repository is read.
	RepositoryKind string

	// Repository is one entry of the resolver chain.
	Repository struct {
		Name string         `json:"name" yaml:"name" validate:"required,excludesall= /\\"`
		Root string         `json:"root" yaml:"root" validate:"required"`
		Kind RepositoryKind `json:"type" yaml:"type" validate:"required,oneof=git dir"`
	}
)

var repoValidate = validator.New(validator.WithRequiredStructEnabled())

// RepositoryFromSpec reads a repository from a spec with keys name, root
// (or url) and type (or kind). A missing type is inferred from root, and a
// missing name from the root's last element.
func RepositoryFromSpec(spec depspec.Spec) (Repository, error) {
	get := func(keys ...string) (string, error) {
		for _, k := range keys {
			if _, ok := spec[k]; ok {
				return spec.String(k)
			}
		}
		return "", nil
	}

	name, err := get("name", "id")
	if err != nil {
		return Repository{}, err
	}
	root, err := get("root", "url")
	if err != nil {
		return Repository{}, err
	}
	kind, err := get("type", "kind")
	if err != nil {
		return Repository{}, err
	}

	r := Repository{Name: name, Root: root, Kind: RepositoryKind(kind)}
	return r.normalized()
}

// Validate checks the repository fields.
func (r Repository) Validate() error {
	err := repoValidate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &InvalidRepositoryError{
			Name:   r.Name,
			Reason: fmt.Sprintf("%s fails %q (value %q)", strings.ToLower(fe.Field()), fe.Tag(), fe.Value()),
		}
	}
	return &InvalidRepositoryError{Name: r.Name, Reason: err.Error()}
}

func (r Repository) String() string {
	return fmt.Sprintf("%s (%s %s)", r.Name, r.Kind, r.Root)
}

// normalized fills inferred fields, turns file URIs of dir repositories into
// paths and validates the result.
func (r Repository) normalized() (Repository, error) {
	r.Root = strings.TrimSpace(r.Root)
	if r.Root == "" {
		return Repository{}, &InvalidRepositoryError{Name: r.Name, Reason: "root is required"}
	}
	if r.Kind == "" {
		r.Kind = inferKind(r.Root)
	}
	if r.Kind == KindDir {
		if p, ok := strings.CutPrefix(r.Root, "file://"); ok {
			r.Root = filepath.FromSlash(p)
		}
		r.Root = filepath.Clean(r.Root)
	} else {
		r.Root = strings.TrimSuffix(r.Root, "/")
	}
	if r.Name == "" {
		r.Name = nameFromRoot(r.Root)
	}
	if err := r.Validate(); err != nil {
		return Repository{}, err
	}
	return r, nil
}

func inferKind(root string) RepositoryKind {
	switch {
	case strings.HasPrefix(root, "git@"), strings.HasSuffix(root, ".git"):
		return KindGit
	case strings.HasPrefix(root, "file://"):
		return KindDir
	case strings.Contains(root, "://"):
		return KindGit
	default:
		return KindDir
	}
}

func nameFromRoot(root string) string {
	if u, err := url.Parse(root); err == nil && u.Host != "" {
		name := u.Host
		if p := strings.Trim(u.Path, "/"); p != "" {
			name += "-" + strings.ReplaceAll(p, "/", "-")
		}
		return name
	}
	base := filepath.Base(root)
	if base == "." || base == string(filepath.Separator) {
		return "local"
	}
	return base
}
