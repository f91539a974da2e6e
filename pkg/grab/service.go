// SPDX-License-Identifier: MPL-2.0

// Package grab is the public entry point for acquiring external artifacts.
//
// A Service fills per-request defaults from its Settings, hands the request
// to a resolver.Adapter and degrades to empty results when grabbing is
// disabled or no resolution engine can be built.
package grab

import (
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/log"

	"github.com/invowk/grab/pkg/depspec"
	"github.com/invowk/grab/pkg/isolation"
	"github.com/invowk/grab/pkg/resolver"
)

// EndorsedGroup is the group GrabEndorsed fetches bare module names from.
const EndorsedGroup = "grab.endorsed"

type (
	// Service acquires artifacts for a host application.
	Service interface {
		// GrabEndorsed grabs the newest version of an endorsed module.
		GrabEndorsed(ctx context.Context, name string) error
		// Grab resolves one dependency and loads it into an isolation context.
		Grab(ctx context.Context, spec depspec.Spec) error
		// GrabAll is the batch form of Grab; options apply to every dependency
		// that does not set them itself.
		GrabAll(ctx context.Context, options depspec.Spec, deps ...depspec.Spec) error
		// Resolve fetches dependencies without loading them.
		Resolve(ctx context.Context, options depspec.Spec, deps ...depspec.Spec) ([]resolver.Artifact, error)
		// ResolveWithInfo is Resolve with resolution diagnostics recorded in info.
		ResolveWithInfo(ctx context.Context, options depspec.Spec, info *resolver.Diagnostics, deps ...depspec.Spec) ([]resolver.Artifact, error)
		// ListDependencies returns what was grabbed into target.
		ListDependencies(ctx context.Context, target isolation.Context) ([]depspec.Spec, error)
		// Dependencies reports everything ever grabbed as
		// {engine: {"group:module": versions}}.
		Dependencies(ctx context.Context) (map[string]map[string][]string, error)
		// AddResolver registers an additional repository.
		AddResolver(ctx context.Context, spec depspec.Spec) error

		Enabled() bool
		SetEnabled(bool)
		AutoDownload() bool
		SetAutoDownload(bool)
		DisableChecksums() bool
		SetDisableChecksums(bool)
	}

	// DefaultService is the Service backed by a resolver.Adapter.
	DefaultService struct {
		*Settings
		adapter        *resolver.Adapter
		defaultContext isolation.Context
		logger         *log.Logger
	}

	// Option configures a DefaultService.
	Option func(*DefaultService)
)

var _ Service = (*DefaultService)(nil)

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) Option {
	return func(s *DefaultService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaultContext sets the isolation context grabs load into when the
// request names none.
func WithDefaultContext(c isolation.Context) Option {
	return func(s *DefaultService) { s.defaultContext = c }
}

// WithAdapter replaces the adapter built from the engine factory.
func WithAdapter(a *resolver.Adapter) Option {
	return func(s *DefaultService) {
		if a != nil {
			s.adapter = a
		}
	}
}

// New returns a service reading its switches from settings and building its
// engine with factory on first use. A nil settings means DefaultSettings.
func New(settings *Settings, factory resolver.EngineFactory, opts ...Option) *DefaultService {
	if settings == nil {
		settings = DefaultSettings()
	}
	s := &DefaultService{
		Settings: settings,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.adapter == nil {
		s.adapter = resolver.NewAdapter(factory, resolver.WithAdapterLogger(s.logger))
	}
	return s
}

// DefaultContext returns the context grabs fall back to.
func (s *DefaultService) DefaultContext() isolation.Context { return s.defaultContext }

func (s *DefaultService) GrabEndorsed(ctx context.Context, name string) error {
	return s.Grab(ctx, depspec.Spec{
		depspec.KeyGroup:   EndorsedGroup,
		depspec.KeyModule:  name,
		depspec.KeyVersion: depspec.AnyVersion,
	})
}

func (s *DefaultService) Grab(ctx context.Context, spec depspec.Spec) error {
	if !s.Enabled() {
		return nil
	}
	prepared, err := s.adapter.Prepare(spec, s.defaults())
	if err != nil {
		return err
	}
	s.logger.Debug("grab", "spec", prepared)
	return s.failOpen(s.adapter.Grab(ctx, prepared, s.defaultContext))
}

func (s *DefaultService) GrabAll(ctx context.Context, options depspec.Spec, deps ...depspec.Spec) error {
	if !s.Enabled() {
		return nil
	}
	prepared, err := s.prepareBatch(options, deps)
	if err != nil {
		return err
	}
	return s.failOpen(s.adapter.GrabAll(ctx, prepared[0], s.defaultContext, prepared[1:]...))
}

func (s *DefaultService) Resolve(ctx context.Context, options depspec.Spec, deps ...depspec.Spec) ([]resolver.Artifact, error) {
	return s.ResolveWithInfo(ctx, options, nil, deps...)
}

func (s *DefaultService) ResolveWithInfo(ctx context.Context, options depspec.Spec, info *resolver.Diagnostics, deps ...depspec.Spec) ([]resolver.Artifact, error) {
	if !s.Enabled() {
		return nil, nil
	}
	prepared, err := s.prepareBatch(options, deps)
	if err != nil {
		return nil, err
	}
	artifacts, err := s.adapter.Resolve(ctx, prepared[0], info, prepared[1:]...)
	if err = s.failOpen(err); err != nil {
		return nil, err
	}
	return artifacts, nil
}

// ListDependencies lists target, or the default context when target is nil.
func (s *DefaultService) ListDependencies(ctx context.Context, target isolation.Context) ([]depspec.Spec, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if target == nil {
		target = s.defaultContext
	}
	if target == nil {
		return nil, nil
	}
	specs, err := s.adapter.ListDependencies(ctx, target)
	if err = s.failOpen(err); err != nil {
		return nil, err
	}
	return specs, nil
}

// Dependencies never returns a nil map without an error.
func (s *DefaultService) Dependencies(ctx context.Context) (map[string]map[string][]string, error) {
	empty := map[string]map[string][]string{}
	if !s.Enabled() {
		return empty, nil
	}
	deps, err := s.adapter.Enumerate(ctx)
	if err = s.failOpen(err); err != nil {
		return nil, err
	}
	if deps == nil {
		return empty, nil
	}
	return deps, nil
}

func (s *DefaultService) AddResolver(ctx context.Context, spec depspec.Spec) error {
	if !s.Enabled() {
		return nil
	}
	normalized, err := spec.Normalize()
	if err != nil {
		return err
	}
	return s.failOpen(s.adapter.AddResolver(ctx, normalized))
}

// defaults returns the per-request policy taken from the settings.
func (s *DefaultService) defaults() depspec.Spec {
	return depspec.Spec{
		depspec.KeyAutoDownload:     s.AutoDownload(),
		depspec.KeyDisableChecksums: s.DisableChecksums(),
	}
}

// prepareBatch returns the prepared options followed by the normalized
// dependencies. Options get the settings defaults; each dependency gets the
// prepared options.
func (s *DefaultService) prepareBatch(options depspec.Spec, deps []depspec.Spec) ([]depspec.Spec, error) {
	opts, err := s.adapter.Prepare(options, s.defaults())
	if err != nil {
		return nil, err
	}
	out := make([]depspec.Spec, 0, len(deps)+1)
	out = append(out, opts)
	for _, dep := range deps {
		policy := depspec.Spec{}
		for _, k := range []string{depspec.KeyAutoDownload, depspec.KeyDisableChecksums} {
			policy[k] = opts[k]
		}
		prepared, err := s.adapter.Prepare(dep, policy)
		if err != nil {
			return nil, err
		}
		out = append(out, prepared)
	}
	return out, nil
}

// failOpen swallows the error of an engine that could not be built.
func (s *DefaultService) failOpen(err error) error {
	if errors.Is(err, resolver.ErrEngineUnavailable) {
		s.logger.Debug("resolution unavailable, returning empty result", "err", err)
		return nil
	}
	return err
}
