// SPDX-License-Identifier: MPL-2.0

package argparse

import (
	"fmt"

	"github.com/invowk/grab/pkg/depspec"
)

// Spec converts the arguments into a dependency spec. A single positional
// string is read as "group:module[:version[:conf]]" and its fields are filled
// unless named arguments already give them. Any other positional shape is
// rejected.
func (a *Args) Spec() (depspec.Spec, error) {
	spec := make(depspec.Spec, len(a.Named)+4)
	for _, k := range a.Keys {
		spec[k] = a.Named[k]
	}

	switch len(a.Positional) {
	case 0:
	case 1:
		s, ok := a.Positional[0].(string)
		if !ok {
			return nil, &SyntaxError{Input: fmt.Sprint(a.Positional[0]), Msg: "positional argument must be a coordinate string"}
		}
		coords, err := depspec.ParseCoordinates(s)
		if err != nil {
			return nil, err
		}
		spec.Merge(coords.Spec())
	default:
		return nil, &SyntaxError{Input: fmt.Sprint(a.Positional...), Msg: fmt.Sprintf("expected at most one positional argument, got %d", len(a.Positional))}
	}

	if _, err := spec.Normalize(); err != nil {
		return nil, err
	}
	return spec, nil
}

// ParseSpec parses s and converts it with Args.Spec.
func ParseSpec(s string) (depspec.Spec, error) {
	args, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return args.Spec()
}
