// SPDX-License-Identifier: MPL-2.0

package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/invowk/grab/pkg/isolation"
	"github.com/invowk/grab/pkg/resolver"
)

// PathEnv lists the local paths of the artifacts visible to a script,
// separated by os.PathListSeparator.
const PathEnv = "GRAB_PATH"

// ErrUnknownLanguage is returned for a script no engine claims.
var ErrUnknownLanguage = errors.New("no script engine for file")

type (
	// Host owns the script engines and the isolation context scripts run
	// under.
	Host struct {
		context *isolation.Boundary
		engines []Engine
		logger  *log.Logger
	}

	// HostOption configures a Host.
	HostOption func(*Host)
)

// WithEngine adds an engine. Engines added later win extension clashes.
func WithEngine(e Engine) HostOption {
	return func(h *Host) { h.engines = append([]Engine{e}, h.engines...) }
}

// WithHostLogger sets the host logger.
func WithHostLogger(l *log.Logger) HostOption {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHost returns a host whose scripts get specialized children of parent.
// A nil parent is replaced by a fresh plain root. The shell and Go engines
// are always registered.
func NewHost(parent *isolation.Boundary, opts ...HostOption) *Host {
	if parent == nil {
		parent = isolation.NewRoot("host")
	}
	h := &Host{
		context: parent,
		engines: []Engine{ShellEngine{}, GoEngine{}},
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Context returns the isolation context scripts are created under.
func (h *Host) Context() *isolation.Boundary { return h.context }

// EngineFor returns the engine claiming path's extension.
func (h *Host) EngineFor(path string) (Engine, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range h.engines {
		for _, claimed := range e.Extensions() {
			if claimed == ext {
				return e, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, path)
}

// NewInfo describes a new instance of the script at path, running in its own
// specialized context.
func (h *Host) NewInfo(path string, args ...string) (*Info, error) {
	e, err := h.EngineFor(path)
	if err != nil {
		return nil, err
	}
	return &Info{
		Path:     path,
		Language: e.Language(),
		Args:     args,
		Context:  h.context.NewChild("script:"+filepath.Base(path), true),
	}, nil
}

// PrepareFile opens path and prepares it with processors.
func (h *Host) PrepareFile(path string, args []string, processors ...Processor) (*Prepared, error) {
	info, err := h.NewInfo(path, args...)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Prepare(info, f, processors...)
}

// Run executes the pending actions of p and then its body. The body does not
// run when an action fails.
func (h *Host) Run(ctx context.Context, p *Prepared, opts RunOptions) error {
	if err := p.Info.Execute(ctx); err != nil {
		return err
	}
	e, err := h.EngineFor(p.Info.Path)
	if err != nil {
		return err
	}

	paths := ArtifactPaths(p.Info.Context)
	h.logger.Debug("running script", "path", p.Info.Path, "engine", e.Language(), "artifacts", len(paths))

	opts.Env = append(append([]string(nil), opts.Env...), PathEnv+"="+strings.Join(paths, string(os.PathListSeparator)))
	return e.Run(ctx, p, opts)
}

// ArtifactPaths returns the local paths of the artifacts visible from c.
// Artifacts that are not file URIs are returned unchanged.
func ArtifactPaths(c isolation.Context) []string {
	if c == nil {
		return nil
	}
	visible := isolation.Visible(c)
	paths := make([]string, 0, len(visible))
	for _, a := range visible {
		p, err := resolver.Artifact(a).Path()
		if err != nil {
			p = a
		}
		paths = append(paths, p)
	}
	return paths
}
