// internal/scenario/scenario.go
package scenario

import (
	"regexp"
	"strings"

	"github.com/cmux-cli/uiverify/internal/step"
)

// Scenario is one business workflow expressed as an ordered list of steps.
type Scenario struct {
	Name        string            `yaml:"name" json:"name" jsonschema:"minLength=1"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Vars        map[string]string `yaml:"vars,omitempty" json:"vars,omitempty"`
	Steps       []step.Step       `yaml:"steps" json:"steps" jsonschema:"minItems=1"`

	// Source is the file the scenario was loaded from.
	Source string `yaml:"-" json:"-"`
	// Env holds the variables visible to when expressions.
	Env map[string]any `yaml:"-" json:"-"`
}

// Count returns the number of steps including nested then branches.
func (s *Scenario) Count() int {
	var count func([]step.Step) int
	count = func(steps []step.Step) int {
		n := 0
		for _, st := range steps {
			n += 1 + count(st.Then)
		}
		return n
	}
	return count(s.Steps)
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug is the scenario name reduced to a directory-safe form. "&" reads as "and".
func (s *Scenario) Slug() string {
	name := strings.ReplaceAll(strings.ToLower(s.Name), "&", " and ")
	slug := strings.Trim(slugRe.ReplaceAllString(name, "-"), "-")
	if slug == "" {
		return "scenario"
	}
	return slug
}

func (s *Scenario) env() map[string]any {
	if s.Env != nil {
		return s.Env
	}
	env := make(map[string]any, len(s.Vars))
	for k, v := range s.Vars {
		env[k] = v
	}
	return env
}
