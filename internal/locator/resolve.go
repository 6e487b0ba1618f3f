// internal/locator/resolve.go
package locator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cmux-cli/uiverify/internal/failure"
)

// Resolve narrows d against snap to exactly one element.
//
// Candidates are gathered from the base match, filtered by has/has_text, restricted to
// scope descendants, lifted by up, and finally selected by nth. More than one remaining
// element without nth fails with AmbiguousLocator; none fails with LocatorNotFound.
func Resolve(snap *Snapshot, d Descriptor) (Ref, error) {
	if err := d.Validate(); err != nil {
		return Ref{}, &failure.Error{Kind: failure.KindInvalidStep, Descriptor: d.String(), Message: err.Error()}
	}
	r := newResolver(snap)
	matches := r.narrow(&d)
	switch {
	case len(matches) == 0:
		return Ref{}, &failure.Error{
			Kind:       failure.KindLocatorNotFound,
			Descriptor: d.String(),
			Message:    "no element matches",
		}
	case len(matches) > 1:
		return Ref{}, &failure.Error{
			Kind:       failure.KindAmbiguousLocator,
			Descriptor: d.String(),
			Message:    fmt.Sprintf("%d elements match; add nth or narrow the descriptor", len(matches)),
			Actual:     r.describe(matches, 3),
		}
	}
	return snap.Ref(matches[0]), nil
}

type resolver struct {
	snap     *Snapshot
	children [][]int
}

func newResolver(snap *Snapshot) *resolver {
	r := &resolver{snap: snap}
	if snap == nil {
		return r
	}
	r.children = make([][]int, len(snap.Nodes))
	for i := range snap.Nodes {
		if p := snap.Nodes[i].Parent; p >= 0 && p < len(snap.Nodes) {
			r.children[p] = append(r.children[p], i)
		}
	}
	return r
}

func (r *resolver) narrow(d *Descriptor) []int {
	if r.snap == nil {
		return nil
	}
	var set []int
	if d.Kind == KindComposite {
		set = r.narrow(d.Base)
	} else {
		set = r.base(d)
	}

	if d.HasText != "" {
		want := normalize(d.HasText)
		set = filter(set, func(i int) bool {
			return containsFold(normalize(r.snap.Nodes[i].Text), want)
		})
	}
	if d.Has != nil {
		marked := r.ancestorsOf(r.narrow(d.Has))
		set = filter(set, func(i int) bool { return marked[i] })
	}
	if d.Scope != nil {
		scope := make(map[int]bool)
		for _, s := range r.narrow(d.Scope) {
			scope[s] = true
		}
		set = filter(set, func(i int) bool {
			for p := r.parent(i); p >= 0; p = r.parent(p) {
				if scope[p] {
					return true
				}
			}
			return false
		})
	}
	if d.Up > 0 {
		set = r.lift(set, d.Up)
	}
	if d.Nth != nil {
		set = pick(set, *d.Nth)
	}
	return set
}

func (r *resolver) base(d *Descriptor) []int {
	nodes := r.snap.Nodes
	var out []int
	switch d.Kind {
	case KindRole:
		role := strings.ToLower(d.Value)
		m := newMatcher(d.Name, d.Exact, d.Regex)
		for i := range nodes {
			n := &nodes[i]
			if n.Hidden || n.Role != role {
				continue
			}
			if d.Name != "" && !m.match(n.Name) {
				continue
			}
			out = append(out, i)
		}
	case KindLabel:
		m := newMatcher(d.Value, d.Exact, d.Regex)
		for i := range nodes {
			for _, l := range nodes[i].Labels {
				if m.match(l) {
					out = append(out, i)
					break
				}
			}
		}
	case KindPlaceholder:
		m := newMatcher(d.Value, d.Exact, d.Regex)
		for i := range nodes {
			if nodes[i].Placeholder != "" && m.match(nodes[i].Placeholder) {
				out = append(out, i)
			}
		}
	case KindText:
		m := newMatcher(d.Value, d.Exact, d.Regex)
		hit := make([]bool, len(nodes))
		for i := range nodes {
			hit[i] = m.match(nodes[i].Text)
		}
		// Keep the innermost elements whose text matches.
		for i := range nodes {
			if !hit[i] {
				continue
			}
			inner := false
			for _, c := range r.children[i] {
				if hit[c] {
					inner = true
					break
				}
			}
			if !inner {
				out = append(out, i)
			}
		}
	case KindCSS:
		sel := -1
		for i, s := range r.snap.Selectors {
			if s == d.Value {
				sel = i
				break
			}
		}
		if sel < 0 {
			return nil
		}
		for i := range nodes {
			for _, m := range nodes[i].Matched {
				if m == sel {
					out = append(out, i)
					break
				}
			}
		}
	}
	return out
}

func (r *resolver) parent(i int) int {
	p := r.snap.Nodes[i].Parent
	if p < 0 || p >= len(r.snap.Nodes) || p == i {
		return -1
	}
	return p
}

// ancestorsOf marks every strict ancestor of the given nodes.
func (r *resolver) ancestorsOf(set []int) map[int]bool {
	marked := make(map[int]bool)
	for _, i := range set {
		for p := r.parent(i); p >= 0; p = r.parent(p) {
			if marked[p] {
				break
			}
			marked[p] = true
		}
	}
	return marked
}

func (r *resolver) lift(set []int, levels int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, i := range set {
		p := i
		for l := 0; l < levels && p >= 0; l++ {
			p = r.parent(p)
		}
		if p < 0 || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func (r *resolver) describe(set []int, limit int) string {
	parts := make([]string, 0, limit)
	for k, i := range set {
		if k == limit {
			parts = append(parts, fmt.Sprintf("+%d more", len(set)-limit))
			break
		}
		n := r.snap.Nodes[i]
		label := n.Name
		if label == "" {
			label = n.Text
		}
		if runes := []rune(label); len(runes) > 40 {
			label = string(runes[:40]) + "..."
		}
		parts = append(parts, fmt.Sprintf("<%s role=%s %q>", n.Tag, n.Role, label))
	}
	return strings.Join(parts, ", ")
}

func pick(set []int, nth Nth) []int {
	if len(set) == 0 {
		return set
	}
	switch nth.Pos {
	case PosFirst:
		return set[:1]
	case PosLast:
		return set[len(set)-1:]
	default:
		if nth.Index < len(set) {
			return set[nth.Index : nth.Index+1]
		}
		return nil
	}
}

func filter(set []int, keep func(int) bool) []int {
	out := set[:0:0]
	for _, i := range set {
		if keep(i) {
			out = append(out, i)
		}
	}
	return out
}

type matcher struct {
	want  string
	exact bool
	re    *regexp.Regexp
}

func newMatcher(want string, exact, regex bool) matcher {
	m := matcher{want: normalize(want), exact: exact}
	if regex {
		// Validate has already compiled the pattern once.
		m.re = regexp.MustCompile(want)
	}
	return m
}

func (m matcher) match(s string) bool {
	s = normalize(s)
	switch {
	case m.re != nil:
		return m.re.MatchString(s)
	case m.exact:
		return s == m.want
	default:
		return containsFold(s, m.want)
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
