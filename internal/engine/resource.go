// SPDX-License-Identifier: MPL-2.0

package engine

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/invowk/grab/pkg/cueutil"
)

//go:embed grab_config.cue
var defaultRepositoriesResource []byte

//go:embed schema/repositories_schema.cue
var repositoriesSchema []byte

type repositoryFile struct {
	Repositories []Repository `json:"repositories"`
}

// MaterializeResource copies the built-in repository list into a fresh file
// in the platform temp directory and returns its path. The file is left in
// place for the life of the process.
func MaterializeResource() (string, error) {
	return materialize(defaultRepositoriesResource)
}

func materialize(data []byte) (string, error) {
	f, err := os.CreateTemp("", "grabConfig*.cue")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for default repositories: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write default repositories: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write default repositories: %w", err)
	}
	return f.Name(), nil
}

// LoadRepositoriesFile decodes a CUE file of the form
// repositories: [{name, root, type}].
func LoadRepositoriesFile(path string) ([]Repository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read repositories file: %w", err)
	}
	result, err := cueutil.ParseAndDecode[repositoryFile](repositoriesSchema, data, "#Repositories", cueutil.WithFilename(path))
	if err != nil {
		return nil, err
	}
	out := make([]Repository, 0, len(result.Value.Repositories))
	for _, r := range result.Value.Repositories {
		n, err := r.normalized()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// RepositoriesFileEnv names a CUE repositories file that replaces the
// built-in list.
const RepositoriesFileEnv = "GRAB_REPOSITORIES_FILE"

// DefaultRepositories returns the repositories of the file named by
// GRAB_REPOSITORIES_FILE, or the built-in ones when it is unset. Failures are
// logged and yield no repositories.
func DefaultRepositories(logger *log.Logger, getenv func(string) string) []Repository {
	path := getenv(RepositoriesFileEnv)
	if path == "" {
		var err error
		if path, err = MaterializeResource(); err != nil {
			logger.Error("could not copy default repositories", "err", err)
			return nil
		}
	}
	repos, err := LoadRepositoriesFile(path)
	if err != nil {
		logger.Error("could not load default repositories", "path", path, "err", err)
		return nil
	}
	logger.Debug("loaded default repositories", "path", path, "count", len(repos))
	return repos
}
