// SPDX-License-Identifier: MPL-2.0

// Package directive turns "#@dependency(...)" and "#@repository(...)" lines
// of a script into a pending action that acquires them before the script
// body runs.
//
//	#@repository(name='corp', root='https://git.example.com')
//	#@dependency('org.example:lib:^1.2')
//	#@Dependency(group='org.example', module='util', version='2.0.1')
//
// Directive lines are removed from the body. Repositories are registered
// before any dependency is grabbed, each kind in declaration order.
package directive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/invowk/grab/pkg/argparse"
	"github.com/invowk/grab/pkg/depspec"
	"github.com/invowk/grab/pkg/script"
)

const (
	// KindDependency marks a "#@dependency" line.
	KindDependency Kind = "dependency"
	// KindRepository marks a "#@repository" line.
	KindRepository Kind = "repository"
)

const (
	// StateIdle is the state before Begin.
	StateIdle State = iota
	// StateCollecting is the state between Begin and End.
	StateCollecting
	// StateFinalized is the state after End.
	StateFinalized
)

// ErrInvalidDirective is the sentinel wrapped by ParseError.
var ErrInvalidDirective = errors.New("invalid directive")

var directivePattern = regexp.MustCompile(`(?i)^#@ *(dependency|repository)(\(.*)$`)

type (
	// Kind is the kind of a directive.
	Kind string

	// State is the state of a Processor.
	State int

	// Grabber is what the pending action acquires directives through.
	Grabber interface {
		AddResolver(ctx context.Context, spec depspec.Spec) error
		Grab(ctx context.Context, spec depspec.Spec) error
	}

	// ParseError reports a directive whose arguments could not be read.
	ParseError struct {
		Kind Kind
		Line int
		Arg  string
		Err  error
	}

	// Processor collects directives during one preparation pass. It is not
	// safe for concurrent use; a script is prepared by one goroutine.
	Processor struct {
		grabber Grabber
		logger  *log.Logger

		state        State
		info         *script.Info
		line         int
		dependencies []directiveLine
		repositories []directiveLine
	}

	// Option configures a Processor.
	Option func(*Processor)

	directiveLine struct {
		line int
		arg  string
	}

	parsedDirective struct {
		kind Kind
		line int
		spec depspec.Spec
	}
)

var _ script.Processor = (*Processor)(nil)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: invalid %s directive %s: %v", e.Line, e.Kind, e.Arg, e.Err)
}

// Unwrap returns ErrInvalidDirective and the underlying parse error.
func (e *ParseError) Unwrap() []error { return []error{ErrInvalidDirective, e.Err} }

// WithLogger sets the processor logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns an idle processor that acquires directives through g.
func New(g Grabber, opts ...Option) *Processor {
	p := &Processor{grabber: g, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current state.
func (p *Processor) State() State { return p.state }

// Begin starts collecting directives for info, discarding anything collected
// before.
func (p *Processor) Begin(info *script.Info) {
	p.state = StateCollecting
	p.info = info
	p.line = 0
	p.dependencies = nil
	p.repositories = nil
}

// Process elides directive lines and returns every other line unchanged.
// Outside a Begin/End pair every line is returned unchanged.
func (p *Processor) Process(line string) string {
	if p.state != StateCollecting {
		return line
	}
	p.line++
	m := directivePattern.FindStringSubmatch(line)
	if m == nil {
		return line
	}
	d := directiveLine{line: p.line, arg: strings.TrimSpace(m[2])}
	switch Kind(strings.ToLower(m[1])) {
	case KindRepository:
		p.repositories = append(p.repositories, d)
	default:
		p.dependencies = append(p.dependencies, d)
	}
	return ""
}

// End stops collecting. When any directive was seen it queues one action on
// the script that registers the repositories and then grabs the
// dependencies.
func (p *Processor) End() {
	if p.state != StateCollecting {
		return
	}
	p.state = StateFinalized
	if len(p.dependencies) == 0 && len(p.repositories) == 0 {
		return
	}

	info := p.info
	repositories := p.repositories
	dependencies := p.dependencies
	p.logger.Debug("directives collected", "script", info.Path,
		"repositories", len(repositories), "dependencies", len(dependencies))

	info.AddAction(func(ctx context.Context) error {
		return p.acquire(ctx, info, repositories, dependencies)
	})
}

// acquire parses every directive before touching the grabber so a bad
// directive leaves nothing half-acquired.
func (p *Processor) acquire(ctx context.Context, info *script.Info, repositories, dependencies []directiveLine) error {
	parsed := make([]parsedDirective, 0, len(repositories)+len(dependencies))
	for _, group := range []struct {
		kind  Kind
		lines []directiveLine
	}{{KindRepository, repositories}, {KindDependency, dependencies}} {
		for _, d := range group.lines {
			spec, err := argparse.ParseSpec(d.arg)
			if err != nil {
				return &ParseError{Kind: group.kind, Line: d.line, Arg: d.arg, Err: err}
			}
			parsed = append(parsed, parsedDirective{kind: group.kind, line: d.line, spec: spec})
		}
	}

	for _, d := range parsed {
		var err error
		switch d.kind {
		case KindRepository:
			err = p.grabber.AddResolver(ctx, d.spec)
		default:
			if info.Context != nil {
				d.spec.FillIfAbsent(depspec.KeyClassLoader, info.Context)
			}
			err = p.grabber.Grab(ctx, d.spec)
		}
		if err != nil {
			return fmt.Errorf("%s line %d: %s: %w", info.Path, d.line, d.kind, err)
		}
		p.logger.Debug("directive acquired", "kind", d.kind, "line", d.line)
	}
	return nil
}
