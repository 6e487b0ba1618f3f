// internal/browser/browsertest/dom.go
package browsertest

import (
	"strings"

	"github.com/cmux-cli/uiverify/internal/locator"
)

// El is a fake DOM element. Elements are visible, enabled and unobstructed unless
// told otherwise, and their rendered text includes their descendants' text.
type El struct {
	node     locator.Node
	own      string
	matches  []string
	children []*El
	onClick  func(p *Page)
	onFill   func(p *Page, value string)
}

// E creates an element with the given children.
func E(tag string, children ...*El) *El {
	return &El{
		node:     locator.Node{Tag: tag, Visible: true, Enabled: true, Hit: true},
		children: children,
	}
}

// Button creates a button whose accessible name and text are name.
func Button(name string) *El {
	return E("button").Role("button").Name(name).Text(name)
}

// Input creates an editable textbox labelled label.
func Input(label string) *El {
	return E("input").Role("textbox").Label(label).Editable()
}

func (e *El) Role(role string) *El        { e.node.Role = strings.ToLower(role); return e }
func (e *El) Name(name string) *El        { e.node.Name = name; return e }
func (e *El) Text(text string) *El        { e.own = text; return e }
func (e *El) Placeholder(p string) *El    { e.node.Placeholder = p; return e }
func (e *El) Label(labels ...string) *El  { e.node.Labels = append(e.node.Labels, labels...); return e }
func (e *El) Value(v string) *El          { e.node.Value = v; return e }
func (e *El) Editable() *El               { e.node.Editable = true; return e }
func (e *El) Disabled() *El               { e.node.Enabled = false; return e }
func (e *El) Invisible() *El              { e.node.Visible = false; e.node.Hit = false; return e }
func (e *El) Obscured() *El               { e.node.Hit = false; return e }
func (e *El) Append(children ...*El) *El  { e.children = append(e.children, children...); return e }
func (e *El) Matches(selector string) *El { e.matches = append(e.matches, selector); return e }

// Hidden removes the element from the accessibility tree and hides it.
func (e *El) Hidden() *El {
	e.node.Hidden = true
	return e.Invisible()
}

// Attr sets an attribute.
func (e *El) Attr(name, value string) *El {
	if e.node.Attrs == nil {
		e.node.Attrs = make(map[string]string)
	}
	e.node.Attrs[name] = value
	return e
}

// OnClick registers a handler run after the element is clicked.
func (e *El) OnClick(fn func(p *Page)) *El { e.onClick = fn; return e }

// OnFill registers a handler run after the element's value is set.
func (e *El) OnFill(fn func(p *Page, value string)) *El { e.onFill = fn; return e }

// CurrentValue returns the element's value as last filled.
func (e *El) CurrentValue() string { return e.node.Value }

// flatten renders the tree rooted at root in document order. Matched selector indexes
// are computed against selectors.
func flatten(root *El, selectors []string) ([]locator.Node, []*El) {
	var nodes []locator.Node
	var els []*El
	var walk func(e *El, parent int) string
	walk = func(e *El, parent int) string {
		idx := len(nodes)
		n := e.node
		n.Index = idx
		n.Parent = parent
		n.Labels = append([]string(nil), e.node.Labels...)
		n.Matched = nil
		for si, sel := range selectors {
			for _, m := range e.matches {
				if m == sel {
					n.Matched = append(n.Matched, si)
					break
				}
			}
		}
		nodes = append(nodes, n)
		els = append(els, e)

		parts := []string{}
		if e.own != "" {
			parts = append(parts, e.own)
		}
		for _, c := range e.children {
			if t := walk(c, idx); t != "" {
				parts = append(parts, t)
			}
		}
		text := strings.Join(parts, " ")
		if !n.Visible {
			text = ""
		}
		nodes[idx].Text = text
		return text
	}
	if root != nil {
		walk(root, -1)
	}
	return nodes, els
}

func contains(root, target *El) bool {
	if root == nil {
		return false
	}
	if root == target {
		return true
	}
	for _, c := range root.children {
		if contains(c, target) {
			return true
		}
	}
	return false
}
