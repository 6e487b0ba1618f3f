// internal/step/step.go
package step

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cmux-cli/uiverify/internal/locator"
)

// Kind is the step variant.
type Kind string

const (
	KindNavigate        Kind = "navigate"
	KindFill            Kind = "fill"
	KindClick           Kind = "click"
	KindAssertVisible   Kind = "assert_visible"
	KindAssertText      Kind = "assert_text"
	KindAssertAttribute Kind = "assert_attribute"
	KindAssertURL       Kind = "assert_url"
	KindScreenshot      Kind = "screenshot"
	KindSleep           Kind = "sleep"
	KindSettle          Kind = "settle"
)

// Kinds lists every step kind in declaration order.
var Kinds = []Kind{
	KindNavigate, KindFill, KindClick,
	KindAssertVisible, KindAssertText, KindAssertAttribute, KindAssertURL,
	KindScreenshot, KindSleep, KindSettle,
}

// Step is one scenario instruction. Which fields apply depends on Kind:
//
//	navigate          url
//	fill              target, value
//	click             target
//	assert_visible    target
//	assert_text       target, expect (substring, or regex with pattern)
//	assert_attribute  target, attribute, expect (equality, or regex with pattern)
//	assert_url        url (equality, or regex with pattern)
//	screenshot        path
//	sleep             duration_ms
//	settle            (none)
type Step struct {
	Name   string              `yaml:"name,omitempty" json:"name,omitempty"`
	Kind   Kind                `yaml:"kind" json:"kind" jsonschema:"enum=navigate,enum=fill,enum=click,enum=assert_visible,enum=assert_text,enum=assert_attribute,enum=assert_url,enum=screenshot,enum=sleep,enum=settle"`
	Target *locator.Descriptor `yaml:"target,omitempty" json:"target,omitempty"`

	URL        string `yaml:"url,omitempty" json:"url,omitempty"`
	Value      string `yaml:"value,omitempty" json:"value,omitempty"`
	Attribute  string `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	Expect     string `yaml:"expect,omitempty" json:"expect,omitempty"`
	Pattern    bool   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Path       string `yaml:"path,omitempty" json:"path,omitempty"`
	DurationMs int    `yaml:"duration_ms,omitempty" json:"duration_ms,omitempty" jsonschema:"minimum=0"`

	// TimeoutMs overrides the default wait bound for this step.
	TimeoutMs int `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty" jsonschema:"minimum=0"`
	// Optional steps are gated on their target being present and visible.
	Optional bool `yaml:"optional,omitempty" json:"optional,omitempty"`
	// Settle waits for network and rendering to go quiet after the step.
	Settle bool `yaml:"settle,omitempty" json:"settle,omitempty"`
	// When is an expression over scenario variables; false skips the step.
	When string `yaml:"when,omitempty" json:"when,omitempty"`
	// Then runs only if this optional step ran and succeeded.
	Then []Step `yaml:"then,omitempty" json:"then,omitempty"`
}

// Navigate builds a navigate step.
func Navigate(url string) Step { return Step{Kind: KindNavigate, URL: url} }

// Fill builds a fill step.
func Fill(d locator.Descriptor, value string) Step {
	return Step{Kind: KindFill, Target: &d, Value: value}
}

// Click builds a click step.
func Click(d locator.Descriptor) Step { return Step{Kind: KindClick, Target: &d} }

// AssertVisible builds an assert_visible step.
func AssertVisible(d locator.Descriptor) Step { return Step{Kind: KindAssertVisible, Target: &d} }

// AssertText builds an assert_text step.
func AssertText(d locator.Descriptor, expected string) Step {
	return Step{Kind: KindAssertText, Target: &d, Expect: expected}
}

// AssertAttribute builds an assert_attribute step.
func AssertAttribute(d locator.Descriptor, name, expected string) Step {
	return Step{Kind: KindAssertAttribute, Target: &d, Attribute: name, Expect: expected}
}

// AssertURL builds an assert_url step.
func AssertURL(url string) Step { return Step{Kind: KindAssertURL, URL: url} }

// Screenshot builds a screenshot step.
func Screenshot(path string) Step { return Step{Kind: KindScreenshot, Path: path} }

// Sleep builds a sleep step.
func Sleep(d time.Duration) Step { return Step{Kind: KindSleep, DurationMs: int(d.Milliseconds())} }

// Settle builds a settle step.
func Settle() Step { return Step{Kind: KindSettle} }

// Maybe marks the step optional.
func (s Step) Maybe() Step { s.Optional = true; return s }

// WithTimeout overrides the step's wait bound.
func (s Step) WithTimeout(d time.Duration) Step { s.TimeoutMs = int(d.Milliseconds()); return s }

// AndThen attaches steps that run only when this optional step runs.
func (s Step) AndThen(children ...Step) Step { s.Then = append(s.Then, children...); return s }

// Timeout returns the step's wait bound override, or zero.
func (s Step) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Targeted reports whether the step acts on an element.
func (s Step) Targeted() bool {
	switch s.Kind {
	case KindFill, KindClick, KindAssertVisible, KindAssertText, KindAssertAttribute:
		return true
	}
	return false
}

// Validate checks the fields the step's kind requires. It does not descend into Then.
func (s Step) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	known := false
	for _, k := range Kinds {
		if s.Kind == k {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}

	if s.Targeted() {
		if s.Target == nil {
			add("target is required")
		} else if err := s.Target.Validate(); err != nil {
			add("target: %v", err)
		}
	} else if s.Target != nil {
		add("target is not used by %s", s.Kind)
	}

	switch s.Kind {
	case KindNavigate:
		if s.URL == "" {
			add("url is required")
		}
	case KindAssertURL:
		if s.URL == "" {
			add("url is required")
		} else if s.Pattern {
			if _, err := regexp.Compile(s.URL); err != nil {
				add("url pattern: %v", err)
			}
		}
	case KindAssertText:
		if s.Expect == "" {
			add("expect is required")
		}
	case KindAssertAttribute:
		if s.Attribute == "" {
			add("attribute is required")
		}
	case KindScreenshot:
		if s.Path == "" {
			add("path is required")
		}
	case KindSleep:
		if s.DurationMs <= 0 {
			add("duration_ms must be positive")
		}
	}
	if s.Pattern {
		switch s.Kind {
		case KindAssertText, KindAssertAttribute:
			if _, err := regexp.Compile(s.Expect); err != nil {
				add("expect pattern: %v", err)
			}
		case KindAssertURL:
		default:
			add("pattern is not used by %s", s.Kind)
		}
	}
	if s.TimeoutMs < 0 {
		add("timeout_ms must not be negative")
	}
	if s.Optional && !s.Targeted() {
		add("optional requires a target to probe")
	}
	if len(s.Then) > 0 && !s.Optional {
		add("then is only allowed on optional steps")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Descriptor renders the step's target, or "" for page-level steps.
func (s Step) Descriptor() string {
	if s.Target == nil {
		return ""
	}
	return s.Target.String()
}

// String is a short human description used in logs and reports.
func (s Step) String() string {
	if s.Name != "" {
		return s.Name
	}
	var b strings.Builder
	b.WriteString(string(s.Kind))
	if s.Target != nil {
		b.WriteString(" ")
		b.WriteString(s.Target.String())
	}
	switch s.Kind {
	case KindNavigate, KindAssertURL:
		fmt.Fprintf(&b, " %s", s.URL)
	case KindAssertText:
		fmt.Fprintf(&b, " contains %q", s.Expect)
	case KindAssertAttribute:
		fmt.Fprintf(&b, " @%s = %q", s.Attribute, s.Expect)
	case KindScreenshot:
		fmt.Fprintf(&b, " %s", s.Path)
	case KindSleep:
		fmt.Fprintf(&b, " %dms", s.DurationMs)
	}
	if s.Optional {
		b.WriteString(" (optional)")
	}
	return b.String()
}
