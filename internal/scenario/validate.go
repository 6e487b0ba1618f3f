// internal/scenario/validate.go
package scenario

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/cmux-cli/uiverify/internal/step"
)

// Validation phases, in the order they run.
const (
	PhaseStructural = "structural"
	PhaseSemantic   = "semantic"
	PhaseDomain     = "domain"
)

// ValidationError is one problem found in a scenario file.
type ValidationError struct {
	Phase   string `json:"phase"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// ValidationErrors collects every problem found in one file.
type ValidationErrors struct {
	Source string
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	lines := make([]string, 0, len(e.Errors)+1)
	lines = append(lines, fmt.Sprintf("%s: %d validation error(s)", e.Source, len(e.Errors)))
	for _, ve := range e.Errors {
		lines = append(lines, "  "+ve.Error())
	}
	return strings.Join(lines, "\n")
}

var (
	schemaOnce sync.Once
	schemaErr  error
	compiled   *sjsonschema.Schema
)

func compiledSchema() (*sjsonschema.Schema, error) {
	schemaOnce.Do(func() {
		data, err := GenerateJSONSchema()
		if err != nil {
			schemaErr = err
			return
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			schemaErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := sjsonschema.NewCompiler()
		if err := c.AddResource(schemaID, doc); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, schemaErr = c.Compile(schemaID)
	})
	return compiled, schemaErr
}

// validateSemantic checks the decoded scenario against the generated JSON Schema.
func validateSemantic(sc *Scenario) []*ValidationError {
	semantic := func(path, format string, args ...any) []*ValidationError {
		return []*ValidationError{{Phase: PhaseSemantic, Path: path, Message: fmt.Sprintf(format, args...)}}
	}
	sch, err := compiledSchema()
	if err != nil {
		return semantic("", "schema: %v", err)
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return semantic("", "marshal for schema validation: %v", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return semantic("", "unmarshal document: %v", err)
	}
	err = sch.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return semantic("", "%v", err)
	}
	var errs []*ValidationError
	for _, cause := range leaves(ve) {
		errs = append(errs, &ValidationError{
			Phase:   PhaseSemantic,
			Path:    instancePath(cause.InstanceLocation),
			Message: fmt.Sprintf("%v", cause.ErrorKind),
		})
	}
	return errs
}

func leaves(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, leaves(cause)...)
	}
	return flat
}

// instancePath renders a JSON pointer location as steps[2].target.name.
func instancePath(loc []string) string {
	var b strings.Builder
	for _, part := range loc {
		if part != "" && strings.Trim(part, "0123456789") == "" {
			fmt.Fprintf(&b, "[%s]", part)
			continue
		}
		if b.Len() > 0 {
			b.WriteString(".")
		}
		b.WriteString(part)
	}
	return b.String()
}

// validateDomain applies the rules a schema cannot express.
func validateDomain(sc *Scenario) []*ValidationError {
	var errs []*ValidationError
	add := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{Phase: PhaseDomain, Path: path, Message: fmt.Sprintf(format, args...)})
	}
	if strings.TrimSpace(sc.Name) == "" {
		add("name", "name is required")
	}
	if len(sc.Steps) == 0 {
		add("steps", "at least one step is required")
	}

	env := sc.env()
	leading := true
	var walk func(steps []step.Step, prefix string, top bool)
	walk = func(steps []step.Step, prefix string, top bool) {
		for i, st := range steps {
			path := fmt.Sprintf("%s[%d]", prefix, i)
			if err := st.Validate(); err != nil {
				add(path, "%v", err)
			}
			if st.Kind == step.KindSleep {
				if !top || !leading {
					add(path, "sleep is only allowed before the first non-sleep step; use an assertion or settle to wait for the page")
				}
			} else if top {
				leading = false
			}
			if st.When != "" {
				if _, err := step.CompileWhen(st.When, env); err != nil {
					add(path+".when", "%v", err)
				}
			}
			walk(st.Then, path+".then", false)
		}
	}
	walk(sc.Steps, "steps", true)
	return errs
}
