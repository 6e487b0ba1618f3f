// internal/scenario/vars.go
package scenario

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/cmux-cli/uiverify/internal/locator"
	"github.com/cmux-cli/uiverify/internal/step"
)

var varRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expander resolves ${name} references. Scenario vars shadow run vars, which
// shadow the process environment.
type expander struct {
	scopes []map[string]string
	lookup func(string) (string, bool)
	errs   []*ValidationError
}

func newExpander(lookupEnv func(string) (string, bool), scopes ...map[string]string) *expander {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	return &expander{scopes: scopes, lookup: lookupEnv}
}

func (x *expander) resolve(name string) (string, bool) {
	for _, scope := range x.scopes {
		if v, ok := scope[name]; ok {
			return v, true
		}
	}
	return x.lookup(name)
}

func (x *expander) expand(s, path string) string {
	return x.expandFunc(s, path, x.resolve)
}

func (x *expander) expandFunc(s, path string, resolve func(string) (string, bool)) string {
	if s == "" {
		return s
	}
	return varRe.ReplaceAllStringFunc(s, func(ref string) string {
		name := varRe.FindStringSubmatch(ref)[1]
		v, ok := resolve(name)
		if !ok {
			x.errs = append(x.errs, &ValidationError{
				Phase:   PhaseDomain,
				Path:    path,
				Message: fmt.Sprintf("undefined variable %q", name),
			})
			return ref
		}
		return v
	})
}

// scenarioVars expands a scenario's vars in dependency order, so one var may
// reference another. A var that references its own name sees the outer value.
func (x *expander) scenarioVars(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	active := make(map[string]bool)
	var define func(name string) string
	define = func(name string) string {
		if v, ok := out[name]; ok {
			return v
		}
		active[name] = true
		v := x.expandFunc(raw[name], "vars."+name, func(ref string) (string, bool) {
			switch {
			case ref == name:
				return x.resolve(ref)
			case active[ref]:
				x.errs = append(x.errs, &ValidationError{
					Phase:   PhaseDomain,
					Path:    "vars." + name,
					Message: fmt.Sprintf("variable cycle through %q", ref),
				})
				return "${" + ref + "}", true
			}
			if _, ok := raw[ref]; ok {
				return define(ref), true
			}
			return x.resolve(ref)
		})
		delete(active, name)
		out[name] = v
		return v
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		define(name)
	}
	return out
}

func (x *expander) step(st *step.Step, path string) {
	st.URL = x.expand(st.URL, path+".url")
	st.Value = x.expand(st.Value, path+".value")
	st.Attribute = x.expand(st.Attribute, path+".attribute")
	st.Expect = x.expand(st.Expect, path+".expect")
	st.Path = x.expand(st.Path, path+".path")
	if st.Target != nil {
		x.descriptor(st.Target, path+".target")
	}
	for i := range st.Then {
		x.step(&st.Then[i], fmt.Sprintf("%s.then[%d]", path, i))
	}
}

func (x *expander) descriptor(d *locator.Descriptor, path string) {
	d.Value = x.expand(d.Value, path+".value")
	d.Name = x.expand(d.Name, path+".name")
	d.HasText = x.expand(d.HasText, path+".has_text")
	for _, sub := range []struct {
		d    *locator.Descriptor
		name string
	}{{d.Base, "base"}, {d.Scope, "scope"}, {d.Has, "has"}} {
		if sub.d != nil {
			x.descriptor(sub.d, path+"."+sub.name)
		}
	}
}
