// internal/locator/descriptor.go
package locator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Kind selects how a descriptor matches elements.
type Kind string

const (
	KindRole        Kind = "role"
	KindLabel       Kind = "label"
	KindPlaceholder Kind = "placeholder"
	KindText        Kind = "text"
	KindComposite   Kind = "composite"
	// KindCSS matches container elements that carry no accessible semantics.
	KindCSS Kind = "css"
)

// Descriptor is a semantic description of a single UI element.
type Descriptor struct {
	Kind Kind `yaml:"kind" json:"kind" jsonschema:"enum=role,enum=label,enum=placeholder,enum=text,enum=composite,enum=css"`
	// Value is the role, label text, placeholder text, visible text or CSS selector.
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
	// Name refines role descriptors by accessible name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Exact switches text matching from case-insensitive substring to equality.
	Exact bool `yaml:"exact,omitempty" json:"exact,omitempty"`
	// Regex treats Name (role) or Value (label, placeholder, text) as a regular expression.
	Regex bool `yaml:"regex,omitempty" json:"regex,omitempty"`

	// Base is the descriptor narrowed by a composite.
	Base *Descriptor `yaml:"base,omitempty" json:"base,omitempty"`
	// Scope restricts matches to descendants of elements matching Scope.
	Scope *Descriptor `yaml:"scope,omitempty" json:"scope,omitempty"`
	// Has keeps matches that contain an element matching Has.
	Has *Descriptor `yaml:"has,omitempty" json:"has,omitempty"`
	// HasText keeps matches whose rendered text contains HasText.
	HasText string `yaml:"has_text,omitempty" json:"has_text,omitempty"`
	// Up replaces each match with its Up-th ancestor.
	Up int `yaml:"up,omitempty" json:"up,omitempty" jsonschema:"minimum=0"`

	Nth *Nth `yaml:"nth,omitempty" json:"nth,omitempty"`
}

// Role builds a role descriptor.
func Role(role, name string) Descriptor {
	return Descriptor{Kind: KindRole, Value: role, Name: name}
}

// Label builds a label descriptor.
func Label(text string) Descriptor {
	return Descriptor{Kind: KindLabel, Value: text}
}

// Placeholder builds a placeholder descriptor.
func Placeholder(text string) Descriptor {
	return Descriptor{Kind: KindPlaceholder, Value: text}
}

// Text builds a text descriptor.
func Text(text string) Descriptor {
	return Descriptor{Kind: KindText, Value: text}
}

// CSS builds a css descriptor.
func CSS(selector string) Descriptor {
	return Descriptor{Kind: KindCSS, Value: selector}
}

// Within returns a copy of d scoped to descendants of scope.
func (d Descriptor) Within(scope Descriptor) Descriptor {
	d.Scope = &scope
	return d
}

// WithText returns a copy of d filtered to elements containing text.
func (d Descriptor) WithText(text string) Descriptor {
	d.HasText = text
	return d
}

// Exactly returns a copy of d that matches text by equality.
func (d Descriptor) Exactly() Descriptor {
	d.Exact = true
	return d
}

// First returns a copy of d selecting the first match.
func (d Descriptor) First() Descriptor {
	d.Nth = &Nth{Pos: PosFirst}
	return d
}

// Last returns a copy of d selecting the last match.
func (d Descriptor) Last() Descriptor {
	d.Nth = &Nth{Pos: PosLast}
	return d
}

// At returns a copy of d selecting the i-th (zero based) match.
func (d Descriptor) At(i int) Descriptor {
	d.Nth = &Nth{Pos: PosIndex, Index: i}
	return d
}

// Validate checks the descriptor tree for structural errors.
func (d *Descriptor) Validate() error {
	switch d.Kind {
	case KindRole:
		if d.Value == "" {
			return fmt.Errorf("role descriptor requires a value")
		}
		if d.Regex && d.Name != "" {
			if _, err := regexp.Compile(d.Name); err != nil {
				return fmt.Errorf("invalid name pattern %q: %w", d.Name, err)
			}
		}
	case KindLabel, KindPlaceholder, KindText:
		if d.Value == "" {
			return fmt.Errorf("%s descriptor requires a value", d.Kind)
		}
		if d.Regex {
			if _, err := regexp.Compile(d.Value); err != nil {
				return fmt.Errorf("invalid pattern %q: %w", d.Value, err)
			}
		}
	case KindCSS:
		if strings.TrimSpace(d.Value) == "" {
			return fmt.Errorf("css descriptor requires a selector")
		}
	case KindComposite:
		if d.Base == nil {
			return fmt.Errorf("composite descriptor requires a base")
		}
		if d.Scope == nil && d.Has == nil && d.HasText == "" && d.Up == 0 {
			return fmt.Errorf("composite descriptor requires scope, has, has_text or up")
		}
	case "":
		return fmt.Errorf("descriptor kind is required")
	default:
		return fmt.Errorf("unknown descriptor kind %q", d.Kind)
	}
	if d.Up < 0 {
		return fmt.Errorf("up must not be negative")
	}
	if d.Nth != nil && d.Nth.Pos == PosIndex && d.Nth.Index < 0 {
		return fmt.Errorf("nth index must not be negative")
	}
	for _, sub := range []*Descriptor{d.Base, d.Scope, d.Has} {
		if sub == nil {
			continue
		}
		if err := sub.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Selectors returns every CSS selector referenced by the descriptor tree.
func (d *Descriptor) Selectors() []string {
	var out []string
	var walk func(*Descriptor)
	walk = func(x *Descriptor) {
		if x == nil {
			return
		}
		if x.Kind == KindCSS {
			out = append(out, x.Value)
		}
		walk(x.Base)
		walk(x.Scope)
		walk(x.Has)
	}
	walk(d)
	return out
}

// String renders the descriptor in a compact, locator-like form.
func (d Descriptor) String() string {
	var b strings.Builder
	if d.Scope != nil {
		b.WriteString(d.Scope.String())
		b.WriteString(" >> ")
	}
	switch d.Kind {
	case KindComposite:
		if d.Base != nil {
			b.WriteString(d.Base.String())
		}
	case KindRole:
		fmt.Fprintf(&b, "role=%s", d.Value)
		if d.Name != "" {
			fmt.Fprintf(&b, "[name=%s]", d.quote(d.Name))
		}
	default:
		fmt.Fprintf(&b, "%s=%s", d.Kind, d.quote(d.Value))
	}
	if d.HasText != "" {
		fmt.Fprintf(&b, " >> has_text=%q", d.HasText)
	}
	if d.Has != nil {
		fmt.Fprintf(&b, " >> has=(%s)", d.Has.String())
	}
	if d.Up > 0 {
		fmt.Fprintf(&b, " >> up=%d", d.Up)
	}
	if d.Nth != nil {
		fmt.Fprintf(&b, " >> nth=%s", d.Nth.String())
	}
	return b.String()
}

func (d Descriptor) quote(s string) string {
	switch {
	case d.Regex:
		return "/" + s + "/"
	case d.Exact:
		return strconv.Quote(s) + "s"
	default:
		return strconv.Quote(s)
	}
}

// Pos is the ordinal position selected by Nth.
type Pos string

const (
	PosFirst Pos = "first"
	PosLast  Pos = "last"
	PosIndex Pos = "index"
)

// Nth selects one element when several matches are expected.
type Nth struct {
	Pos   Pos
	Index int
}

func (n Nth) String() string {
	if n.Pos == PosIndex {
		return strconv.Itoa(n.Index)
	}
	return string(n.Pos)
}

// UnmarshalYAML accepts "first", "last" or an integer index.
func (n *Nth) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: nth must be first, last or an index", node.Line)
	}
	switch strings.ToLower(node.Value) {
	case string(PosFirst):
		*n = Nth{Pos: PosFirst}
		return nil
	case string(PosLast):
		*n = Nth{Pos: PosLast}
		return nil
	}
	i, err := strconv.Atoi(node.Value)
	if err != nil || i < 0 {
		return fmt.Errorf("line %d: nth must be first, last or a non-negative index, got %q", node.Line, node.Value)
	}
	*n = Nth{Pos: PosIndex, Index: i}
	return nil
}

// MarshalYAML renders the same forms UnmarshalYAML accepts.
func (n Nth) MarshalYAML() (any, error) {
	if n.Pos == PosIndex {
		return n.Index, nil
	}
	return string(n.Pos), nil
}

// MarshalJSON renders Nth as its string form.
func (n Nth) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(n.String())), nil
}

// JSONSchema describes the string form produced by MarshalJSON.
func (Nth) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^(first|last|[0-9]+)$`,
		Description: "first, last or a zero-based index",
	}
}
