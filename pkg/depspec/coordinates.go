// SPDX-License-Identifier: MPL-2.0

package depspec

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// coordinatePattern accepts dotted, dashed and slash-separated names.
var coordinatePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-/]*$`)

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// registration only fails for an empty tag or nil func
	_ = v.RegisterValidation("coordinate", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return coordinatePattern.MatchString(s) && !strings.Contains(s, "..")
	})
	return v
}()

// Coordinates is the canonical identity of an artifact.
type Coordinates struct {
	Group      string `json:"group" validate:"required,coordinate" jsonschema:"description=Organisation or group the artifact belongs to"`
	Module     string `json:"module" validate:"required,coordinate,excludes=/" jsonschema:"description=Artifact name within the group"`
	Version    string `json:"version" validate:"required,excludesall= :" jsonschema:"description=Exact version or constraint (*; ^1.2; ~1.2.3; >=1.0),default=*"`
	Conf       string `json:"conf,omitempty" validate:"omitempty,excludesall= :" jsonschema:"description=Configuration or scope"`
	Classifier string `json:"classifier,omitempty" validate:"omitempty,excludesall= :"`
}

// ParseCoordinates parses the shorthand "group:module[:version[:conf]]".
func ParseCoordinates(s string) (Coordinates, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 4 {
		return Coordinates{}, &InvalidSpecError{
			Field:  "coordinates",
			Reason: fmt.Sprintf("%q must look like group:module[:version[:conf]]", s),
		}
	}
	c := Coordinates{Group: parts[0], Module: parts[1], Version: AnyVersion}
	if len(parts) > 2 && parts[2] != "" {
		c.Version = parts[2]
	}
	if len(parts) > 3 {
		c.Conf = parts[3]
	}
	if err := c.Validate(); err != nil {
		return Coordinates{}, err
	}
	return c, nil
}

// Validate checks the coordinates against their field rules.
func (c Coordinates) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &InvalidSpecError{
			Field:  strings.ToLower(fe.Field()),
			Reason: describeRule(fe),
		}
	}
	return fmt.Errorf("%w: %w", ErrInvalidSpec, err)
}

// Key identifies the artifact independently of version: "group:module".
func (c Coordinates) Key() string {
	return c.Group + ":" + c.Module
}

// String renders "group:module:version" with ":conf" appended when set.
func (c Coordinates) String() string {
	s := c.Key() + ":" + c.Version
	if c.Conf != "" {
		s += ":" + c.Conf
	}
	return s
}

// WithVersion returns a copy of c pinned to version.
func (c Coordinates) WithVersion(version string) Coordinates {
	c.Version = version
	return c
}

// Spec converts c back into a canonical Spec.
func (c Coordinates) Spec() Spec {
	s := Spec{KeyGroup: c.Group, KeyModule: c.Module, KeyVersion: c.Version}
	if c.Conf != "" {
		s[KeyConf] = c.Conf
	}
	if c.Classifier != "" {
		s[KeyClassifier] = c.Classifier
	}
	return s
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "coordinate":
		return fmt.Sprintf("%q contains characters not allowed in a coordinate", fe.Value())
	case "excludes", "excludesall":
		return fmt.Sprintf("%q must not contain any of %q", fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}
