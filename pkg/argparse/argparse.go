// SPDX-License-Identifier: MPL-2.0

// Package argparse parses the parenthesised argument list that follows a
// script directive, for example
//
//	(group='org.example', module="lib", version=1.2, transitive=false)
//	('org.example:lib:1.2')
//
// Named arguments use "=" or ":" as separator. Values are single- or
// double-quoted strings, true/false, integers, or bare words.
package argparse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrSyntax is returned for malformed argument lists.
var ErrSyntax = errors.New("argument syntax error")

type (
	// Args is a parsed argument list. Named preserves declaration order
	// through Keys.
	Args struct {
		Named      map[string]any
		Keys       []string
		Positional []any
	}

	// SyntaxError locates a parse failure within the input.
	SyntaxError struct {
		Input  string
		Offset int
		Msg    string
	}

	parser struct {
		in  string
		pos int
	}
)

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at offset %d in %q", e.Msg, e.Offset, e.Input)
}

// Unwrap returns ErrSyntax for errors.Is() compatibility.
func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// Parse parses s, which must start with "(" and end with ")" optionally
// followed by whitespace or a semicolon.
func Parse(s string) (*Args, error) {
	p := &parser{in: s}
	args := &Args{Named: make(map[string]any)}

	p.skipSpace()
	if !p.consume('(') {
		return nil, p.errorf("expected '('")
	}
	p.skipSpace()
	if p.consume(')') {
		return p.done(args)
	}

	for {
		if err := p.item(args); err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.consume(',') {
			p.skipSpace()
			// trailing comma
			if p.consume(')') {
				return p.done(args)
			}
			continue
		}
		if p.consume(')') {
			return p.done(args)
		}
		return nil, p.errorf("expected ',' or ')'")
	}
}

func (p *parser) item(args *Args) error {
	start := p.pos
	if p.peek() != '\'' && p.peek() != '"' {
		word := p.word()
		p.skipSpace()
		if word != "" && (p.peek() == '=' || p.peek() == ':') {
			p.pos++
			p.skipSpace()
			v, err := p.value()
			if err != nil {
				return err
			}
			if _, dup := args.Named[word]; dup {
				return &SyntaxError{Input: p.in, Offset: start, Msg: fmt.Sprintf("duplicate argument %q", word)}
			}
			args.Named[word] = v
			args.Keys = append(args.Keys, word)
			return nil
		}
		p.pos = start
	}
	v, err := p.value()
	if err != nil {
		return err
	}
	args.Positional = append(args.Positional, v)
	return nil
}

func (p *parser) value() (any, error) {
	switch c := p.peek(); c {
	case '\'', '"':
		return p.quoted(c)
	case 0:
		return nil, p.errorf("unexpected end of input")
	}
	start := p.pos
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		if c == ',' || c == ')' || unicode.IsSpace(rune(c)) {
			break
		}
		p.pos++
	}
	raw := p.in[start:p.pos]
	if raw == "" {
		return nil, p.errorf("expected a value")
	}
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null", "nil":
		return nil, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	return raw, nil
}

func (p *parser) quoted(quote byte) (string, error) {
	start := p.pos
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.in):
			sb.WriteByte(p.in[p.pos+1])
			p.pos += 2
		case c == quote:
			p.pos++
			return sb.String(), nil
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", &SyntaxError{Input: p.in, Offset: start, Msg: "unterminated string"}
}

func (p *parser) word() string {
	start := p.pos
	for p.pos < len(p.in) {
		r := rune(p.in[p.pos])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		p.pos++
	}
	return p.in[start:p.pos]
}

func (p *parser) done(args *Args) (*Args, error) {
	if err := p.finish(); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) finish() error {
	rest := strings.TrimSpace(p.in[p.pos:])
	if rest != "" && rest != ";" {
		return &SyntaxError{Input: p.in, Offset: p.pos, Msg: fmt.Sprintf("unexpected trailing text %q", rest)}
	}
	return nil
}

func (p *parser) peek() byte {
	if p.pos >= len(p.in) {
		return 0
	}
	return p.in[p.pos]
}

func (p *parser) consume(c byte) bool {
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) skipSpace() {
	for p.pos < len(p.in) && unicode.IsSpace(rune(p.in[p.pos])) {
		p.pos++
	}
}

func (p *parser) errorf(format string, a ...any) error {
	return &SyntaxError{Input: p.in, Offset: p.pos, Msg: fmt.Sprintf(format, a...)}
}
