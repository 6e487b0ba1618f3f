// internal/scenario/load.go
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadOptions supplies the variables scenario files may reference.
type LoadOptions struct {
	BaseURL  string
	Email    string
	Password string
	// Vars are run-wide variables; scenario vars shadow them.
	Vars map[string]string
	// LookupEnv resolves names no variable defines. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

func (o LoadOptions) builtins() map[string]string {
	b := map[string]string{}
	if o.BaseURL != "" {
		b["baseUrl"] = o.BaseURL
	}
	if o.Email != "" {
		b["email"] = o.Email
	}
	if o.Password != "" {
		b["password"] = o.Password
	}
	return b
}

// LoadFile reads and validates one scenario file.
func LoadFile(path string, opts LoadOptions) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Load(bytes.NewReader(data), opts)
	if sc != nil {
		sc.Source = path
	}
	var ve *ValidationErrors
	if errors.As(err, &ve) {
		ve.Source = path
	}
	return sc, err
}

// Load parses and validates a scenario in three phases: a strict yaml decode that
// rejects unknown fields, a JSON Schema check, and domain rules (step fields,
// variable references, sleep placement, when expressions). Every problem found is
// returned in one *ValidationErrors; the scenario is returned alongside it when
// decoding succeeded.
func Load(r io.Reader, opts LoadOptions) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, &ValidationErrors{Source: "<input>", Errors: []*ValidationError{{
			Phase:   PhaseStructural,
			Message: err.Error(),
		}}}
	}

	var errs []*ValidationError
	errs = append(errs, validateSemantic(&sc)...)

	builtins := opts.builtins()
	base := newExpander(opts.LookupEnv, opts.Vars, builtins)
	vars := base.scenarioVars(sc.Vars)
	x := newExpander(opts.LookupEnv, vars, opts.Vars, builtins)
	x.errs = base.errs
	for i := range sc.Steps {
		x.step(&sc.Steps[i], fmt.Sprintf("steps[%d]", i))
	}
	errs = append(errs, x.errs...)

	sc.Vars = vars
	sc.Env = make(map[string]any)
	for _, scope := range []map[string]string{builtins, opts.Vars, vars} {
		for k, v := range scope {
			sc.Env[k] = v
		}
	}
	errs = append(errs, validateDomain(&sc)...)

	if len(errs) > 0 {
		return &sc, &ValidationErrors{Source: "<input>", Errors: errs}
	}
	return &sc, nil
}

// Files expands paths to scenario files. Directories contribute their *.yaml and
// *.yml files, sorted by name.
func Files(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
				found = append(found, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// LoadAll loads every scenario under paths. It stops at the first file that fails.
func LoadAll(paths []string, opts LoadOptions) ([]*Scenario, error) {
	files, err := Files(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no scenario files found")
	}
	scenarios := make([]*Scenario, 0, len(files))
	seen := make(map[string]string)
	for _, f := range files {
		sc, err := LoadFile(f, opts)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[sc.Name]; ok {
			return nil, fmt.Errorf("%s: scenario %q is already defined in %s", f, sc.Name, prev)
		}
		seen[sc.Name] = f
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}
