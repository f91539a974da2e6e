// SPDX-License-Identifier: MPL-2.0

package depspec

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Canonical coordinate keys.
const (
	KeyGroup      = "group"
	KeyModule     = "module"
	KeyVersion    = "version"
	KeyConf       = "conf"
	KeyClassifier = "classifier"
	KeyExt        = "ext"
	KeyType       = "type"
)

// Policy keys understood by the grab service and the resolver adapter.
const (
	KeyAutoDownload     = "autoDownload"
	KeyDisableChecksums = "disableChecksums"
	// KeyClassLoader names the isolation context artifacts are loaded into.
	// "context" is accepted as an alias.
	KeyClassLoader = "classLoader"
	KeyContext     = "context"
	KeyRefObject   = "refObject"
	// KeyCalleeDepth is accepted for compatibility and ignored.
	KeyCalleeDepth = "calleeDepth"
	KeyTransitive  = "transitive"
	KeyChanging    = "changing"
	KeyForce       = "force"
)

// AnyVersion selects the newest available version.
const AnyVersion = "*"

var (
	// ErrConflictingKeys is returned when synonymous keys carry different values.
	ErrConflictingKeys = errors.New("conflicting synonymous keys")

	// ErrInvalidSpec is returned when a spec is missing required coordinates
	// or carries a value of the wrong kind.
	ErrInvalidSpec = errors.New("invalid dependency spec")

	// synonymGroups maps each canonical key to every key that means the same
	// thing, the canonical key first.
	synonymGroups = map[string][]string{
		KeyGroup:       {KeyGroup, "groupId", "organisation", "organization", "org"},
		KeyModule:      {KeyModule, "artifactId", "artifact"},
		KeyVersion:     {KeyVersion, "revision", "rev"},
		KeyConf:        {KeyConf, "scope", "configuration"},
		KeyClassLoader: {KeyClassLoader, KeyContext},
	}

	canonicalKeys = func() map[string]string {
		m := make(map[string]string)
		for canonical, members := range synonymGroups {
			for _, k := range members {
				m[k] = canonical
			}
		}
		return m
	}()
)

type (
	// Spec is a dependency specification: coordinate keys (or any of their
	// synonyms) plus optional policy keys. Values are usually strings or bools.
	Spec map[string]any

	// ConflictingKeysError reports synonymous keys with differing values.
	ConflictingKeysError struct {
		Canonical string
		Keys      []string
		Values    []any
	}

	// InvalidSpecError reports a missing or malformed field.
	InvalidSpecError struct {
		Field  string
		Reason string
	}
)

func (e *ConflictingKeysError) Error() string {
	parts := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		parts[i] = fmt.Sprintf("%s=%v", k, e.Values[i])
	}
	return fmt.Sprintf("conflicting values for %q: %s", e.Canonical, strings.Join(parts, ", "))
}

// Unwrap returns ErrConflictingKeys for errors.Is() compatibility.
func (e *ConflictingKeysError) Unwrap() error { return ErrConflictingKeys }

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid dependency spec: %s %s", e.Field, e.Reason)
}

// Unwrap returns ErrInvalidSpec for errors.Is() compatibility.
func (e *InvalidSpecError) Unwrap() error { return ErrInvalidSpec }

// Canonical returns the canonical form of key, or key itself when it belongs
// to no synonym group.
func Canonical(key string) string {
	if c, ok := canonicalKeys[key]; ok {
		return c
	}
	return key
}

// Synonyms returns every key meaning the same as key, canonical first.
// Keys outside any synonym group return a single-element slice.
func Synonyms(key string) []string {
	if members, ok := synonymGroups[Canonical(key)]; ok {
		return slices.Clone(members)
	}
	return []string{key}
}

// Clone returns a shallow copy of s. A nil spec clones to an empty one.
func (s Spec) Clone() Spec {
	out := make(Spec, len(s))
	maps.Copy(out, s)
	return out
}

// Lookup returns the value stored under key or any of its synonyms.
// Disagreeing synonyms yield a *ConflictingKeysError.
func (s Spec) Lookup(key string) (any, bool, error) {
	canonical := Canonical(key)
	var (
		found  bool
		value  any
		keys   []string
		values []any
	)
	for _, k := range Synonyms(canonical) {
		v, ok := s[k]
		if !ok {
			continue
		}
		keys = append(keys, k)
		values = append(values, v)
		if !found {
			found, value = true, v
			continue
		}
		if !sameValue(value, v) {
			return nil, false, &ConflictingKeysError{Canonical: canonical, Keys: keys, Values: values}
		}
	}
	return value, found, nil
}

// Has reports whether key or one of its synonyms is present.
func (s Spec) Has(key string) bool {
	for _, k := range Synonyms(key) {
		if _, ok := s[k]; ok {
			return true
		}
	}
	return false
}

// FillIfAbsent stores value under key unless key or a synonym is already
// present. It reports whether the value was stored.
func (s Spec) FillIfAbsent(key string, value any) bool {
	if s.Has(key) {
		return false
	}
	s[key] = value
	return true
}

// Normalize returns a copy of s with every synonym folded into its canonical
// key. It fails on the first conflicting synonym group.
func (s Spec) Normalize() (Spec, error) {
	out := make(Spec, len(s))
	for _, k := range slices.Sorted(maps.Keys(s)) {
		canonical := Canonical(k)
		if _, done := out[canonical]; done {
			continue
		}
		v, _, err := s.Lookup(canonical)
		if err != nil {
			return nil, err
		}
		out[canonical] = v
	}
	return out, nil
}

// Merge fills every key of defaults that s does not already carry.
func (s Spec) Merge(defaults Spec) {
	for _, k := range slices.Sorted(maps.Keys(defaults)) {
		s.FillIfAbsent(k, defaults[k])
	}
}

// String returns the string form of the value under key, or "" when absent.
func (s Spec) String(key string) (string, error) {
	v, ok, err := s.Lookup(key)
	if err != nil || !ok || v == nil {
		return "", err
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case fmt.Stringer:
		return val.String(), nil
	case bool, int, int64, float64:
		return fmt.Sprint(val), nil
	default:
		return "", &InvalidSpecError{Field: key, Reason: fmt.Sprintf("must be a string, got %T", v)}
	}
}

// Bool returns the boolean under key, or def when absent.
// The strings "true" and "false" are accepted.
func (s Spec) Bool(key string, def bool) (bool, error) {
	v, ok, err := s.Lookup(key)
	if err != nil || !ok {
		return def, err
	}
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, perr := strconv.ParseBool(val)
		if perr != nil {
			return def, &InvalidSpecError{Field: key, Reason: fmt.Sprintf("must be a boolean, got %q", val)}
		}
		return b, nil
	default:
		return def, &InvalidSpecError{Field: key, Reason: fmt.Sprintf("must be a boolean, got %T", v)}
	}
}

// Coordinates extracts and validates the canonical coordinates of s.
// A missing version defaults to AnyVersion.
func (s Spec) Coordinates() (Coordinates, error) {
	var c Coordinates
	fields := []struct {
		key string
		dst *string
	}{
		{KeyGroup, &c.Group},
		{KeyModule, &c.Module},
		{KeyVersion, &c.Version},
		{KeyConf, &c.Conf},
		{KeyClassifier, &c.Classifier},
	}
	for _, f := range fields {
		v, err := s.String(f.key)
		if err != nil {
			return Coordinates{}, err
		}
		*f.dst = strings.TrimSpace(v)
	}
	if c.Version == "" {
		c.Version = AnyVersion
	}
	if err := c.Validate(); err != nil {
		return Coordinates{}, err
	}
	return c, nil
}

// sameValue compares values the way a script author would: 1 and "1" agree.
// Non-scalar values agree only when they are the identical comparable value.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if isScalar(a) && isScalar(b) {
		return fmt.Sprint(a) == fmt.Sprint(b)
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int64, float64:
		return true
	default:
		return false
	}
}
