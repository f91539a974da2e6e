// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/invowk/grab/internal/config"
	"github.com/invowk/grab/internal/engine"
	"github.com/invowk/grab/internal/issue"
	"github.com/invowk/grab/pkg/depspec"
	"github.com/invowk/grab/pkg/directive"
	"github.com/invowk/grab/pkg/grab"
	"github.com/invowk/grab/pkg/isolation"
	"github.com/invowk/grab/pkg/resolver"
	"github.com/invowk/grab/pkg/script"
)

type (
	// App wires CLI services and shared dependencies. Cobra handlers receive
	// an App and open a session per invocation.
	App struct {
		Config        config.Provider
		engineOptions []engine.Option
		stdout        io.Writer
		stderr        io.Writer
		flags         globalFlags
		colorScheme   config.ColorScheme
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
		// EngineOptions are appended to the options the session builds the
		// resolution engine with.
		EngineOptions []engine.Option
	}

	// globalFlags holds the persistent flags of the root command.
	globalFlags struct {
		verbose          bool
		configPath       string
		noDownload       bool
		disableChecksums bool
		disabled         bool
		repos            []string
	}

	// session is one CLI invocation's grab stack: settings from config and
	// flags, a service over a lazily built engine, and a script host whose
	// context is the service's default.
	session struct {
		cfg        *config.Config
		logger     *log.Logger
		adapter    *resolver.Adapter
		service    *grab.DefaultService
		system     *isolation.Boundary
		host       *script.Host
		directives *directive.Processor
		engine     *engine.Engine
	}
)

// NewApp creates an App, filling nil dependencies with production defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:        deps.Config,
		engineOptions: deps.EngineOptions,
		stdout:        deps.Stdout,
		stderr:        deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// loadConfig loads the configuration selected by --config.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if err != nil {
		var ae *issue.ActionableError
		if errors.As(err, &ae) && ae.Issue == 0 {
			ae.Issue = issue.ConfigLoadFailedId
		}
		return nil, err
	}
	a.colorScheme = cfg.UI.ColorScheme
	return cfg, nil
}

// glamourStyle returns the glamour style matching ui.color_scheme.
func (a *App) glamourStyle() string {
	if a.colorScheme == "" {
		return string(config.ColorSchemeAuto)
	}
	return string(a.colorScheme)
}

// newLogger builds the CLI logger; --verbose or ui.verbose enable debug output.
func (a *App) newLogger(cfg *config.Config) *log.Logger {
	logger := log.NewWithOptions(a.stderr, log.Options{Prefix: config.AppName})
	if a.flags.verbose || (cfg != nil && cfg.UI.Verbose) {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// verbose reports whether verbose output is on before any config is loaded.
func (a *App) verbose() bool { return a.flags.verbose }

// open builds the session for one command. Flags override the config file.
func (a *App) open(ctx context.Context) (*session, error) {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: a.newLogger(cfg)}

	settings := grab.NewSettings(
		cfg.Enabled && !a.flags.disabled,
		cfg.AutoDownload && !a.flags.noDownload,
		cfg.DisableChecksums || a.flags.disableChecksums,
	)

	repos := make([]engine.Repository, 0, len(cfg.Repositories))
	for _, r := range cfg.Repositories {
		repos = append(repos, engine.Repository{Name: r.Name, Root: r.Root, Kind: engine.RepositoryKind(r.Type)})
	}
	engineOpts := []engine.Option{
		engine.WithRepositories(repos...),
		engine.WithLogger(s.logger),
	}
	if cfg.CacheDir != "" {
		engineOpts = append(engineOpts, engine.WithCacheDir(cfg.CacheDir))
	}
	engineOpts = append(engineOpts, a.engineOptions...)

	s.adapter = resolver.NewAdapter(func() (resolver.Engine, error) {
		e, err := engine.New(ctx, engineOpts...)
		if err != nil {
			return nil, err
		}
		s.engine = e
		return e, nil
	}, resolver.WithAdapterLogger(s.logger))

	// "system" stands in for the host application's own context; scripts and
	// CLI grabs load into its plain "host" child.
	s.system = isolation.NewRoot("system")
	hostCtx := s.system.NewChild("host", false)
	s.host = script.NewHost(hostCtx, script.WithHostLogger(s.logger))
	s.service = grab.New(settings, nil,
		grab.WithAdapter(s.adapter),
		grab.WithLogger(s.logger),
		grab.WithDefaultContext(hostCtx),
	)
	s.directives = directive.New(s.service, directive.WithLogger(s.logger))

	for _, r := range a.flags.repos {
		spec, err := parseRepoFlag(r)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := s.service.AddResolver(ctx, spec); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Engine returns the resolution engine, building it if needed.
func (s *session) Engine() (*engine.Engine, error) {
	if _, err := s.adapter.Engine(); err != nil {
		return nil, err
	}
	return s.engine, nil
}

// warnIfUnavailable tells the user when the service failed open because
// the engine could not be built.
func (s *session) warnIfUnavailable(w io.Writer) {
	if !s.service.Enabled() {
		return
	}
	if _, err := s.adapter.Engine(); err != nil {
		fmt.Fprintf(w, "%s %s\n", WarningStyle.Render("Warning:"), err)
	}
}

// Close releases the engine if one was built.
func (s *session) Close() {
	if s.engine == nil {
		return
	}
	if err := s.engine.Close(); err != nil {
		s.logger.Warn("close engine", "err", err)
	}
}

// parseRepoFlag reads a --repo value, "name=root" or a bare root.
func parseRepoFlag(v string) (depspec.Spec, error) {
	name, root, ok := strings.Cut(v, "=")
	if !ok {
		name, root = "", v
	}
	if strings.TrimSpace(root) == "" {
		return nil, issue.NewErrorContext().
			WithOperation("parse --repo").
			WithResource(v).
			WithSuggestion("Use --repo name=root, for example --repo corp=https://git.example.com").
			Wrap(fmt.Errorf("%w: empty root", engine.ErrInvalidRepository)).
			BuildError()
	}
	spec := depspec.Spec{"root": root}
	if name != "" {
		spec["name"] = name
	}
	return spec, nil
}
